package testing

import (
	"time"

	"github.com/google/uuid"
	"github.com/xtxerr/datastreams/internal/storage/sequence"
	"github.com/xtxerr/datastreams/internal/storage/types"
)

// SyncAt returns an identity-speed sync point at the given minute of a
// fixed study day.
func SyncAt(minute int) types.SyncPoint {
	return types.NewSyncPoint(time.Date(2024, 3, 1, 12, minute, 0, 0, time.UTC), 0, 1)
}

// StepStream returns the phone step count stream of a deployment.
func StepStream(deployment uuid.UUID) types.StreamID {
	return types.StreamID{DeploymentID: deployment, DeviceRole: "phone", DataType: types.StepCountType}
}

// HeartRateStream returns the chest strap heart rate stream of a deployment.
func HeartRateStream(deployment uuid.UUID) types.StreamID {
	return types.StreamID{DeploymentID: deployment, DeviceRole: "chest strap", DataType: types.HeartRateType}
}

// Configuration expects the step count and heart rate streams.
func Configuration(deployment uuid.UUID) types.DataStreamsConfiguration {
	return types.DataStreamsConfiguration{
		DeploymentID: deployment,
		ExpectedStreams: []types.ExpectedStream{
			{DeviceRole: "phone", DataType: types.StepCountType},
			{DeviceRole: "chest strap", DataType: types.HeartRateType},
		},
	}
}

// StepSequence returns n step count measurements starting at first, one
// second apart in sensor time.
func StepSequence(stream types.StreamID, first int64, n int, sp types.SyncPoint) sequence.Sequence {
	ms := make([]types.Measurement, n)
	for i := range ms {
		ms[i] = types.Instant((first+int64(i))*1_000_000, types.StepCount{Steps: i})
	}
	return sequence.MustNew(stream, first, ms, []int{1}, sp)
}

// HeartRateSequence returns n heart rate measurements starting at first.
func HeartRateSequence(stream types.StreamID, first int64, n int, sp types.SyncPoint) sequence.Sequence {
	ms := make([]types.Measurement, n)
	for i := range ms {
		ms[i] = types.Instant((first+int64(i))*1_000_000, types.HeartRate{BPM: 60 + i%40})
	}
	return sequence.MustNew(stream, first, ms, []int{1}, sp)
}
