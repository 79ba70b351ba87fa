package types

import "time"

// Point is one measurement of a stream together with its sequence id and
// the metadata of the sequence it was stored in.
type Point struct {
	SequenceID  int64
	Stream      StreamID
	Measurement Measurement
	TriggerIDs  []int
	SyncPoint   SyncPoint
}

// UTCStartTime converts the measurement start time to UTC.
func (p *Point) UTCStartTime() time.Time {
	return p.SyncPoint.ToUTCTime(p.Measurement.SensorStartTime)
}

// UTCEndTime converts the measurement end time to UTC. ok is false for
// instantaneous measurements.
func (p *Point) UTCEndTime() (t time.Time, ok bool) {
	if p.Measurement.SensorEndTime == nil {
		return time.Time{}, false
	}
	return p.SyncPoint.ToUTCTime(*p.Measurement.SensorEndTime), true
}
