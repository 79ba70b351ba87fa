package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/validation"
)

// DataType identifies the kind of data carried by a measurement,
// e.g. dk.cachet.carp.geolocation.
type DataType struct {
	Namespace string
	Name      string
}

// NewDataType validates and returns a data type.
func NewDataType(namespace, name string) (DataType, error) {
	if err := validation.ValidateDataType(namespace, name); err != nil {
		return DataType{}, err
	}
	return DataType{Namespace: namespace, Name: name}, nil
}

// ParseDataType parses the dotted "namespace.name" form. The last segment is
// the name.
func ParseDataType(s string) (DataType, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return DataType{}, fmt.Errorf("data type %q: expected 'namespace.name': %w", s, errors.ErrInvalidStreamID)
	}
	return NewDataType(s[:i], s[i+1:])
}

// MustParseDataType is ParseDataType for package-level constants.
func MustParseDataType(s string) DataType {
	dt, err := ParseDataType(s)
	if err != nil {
		panic(err)
	}
	return dt
}

// String returns the dotted form.
func (d DataType) String() string {
	return d.Namespace + "." + d.Name
}

// IsZero returns true for the zero data type.
func (d DataType) IsZero() bool {
	return d.Namespace == "" && d.Name == ""
}

// StreamID identifies one logical ordered channel of measurements of a single
// data type produced by one device role in one study deployment.
// It is comparable and used as a map key.
type StreamID struct {
	DeploymentID uuid.UUID
	DeviceRole   string
	DataType     DataType
}

// NewStreamID validates and returns a stream id.
func NewStreamID(deploymentID uuid.UUID, deviceRole string, dataType DataType) (StreamID, error) {
	id := StreamID{DeploymentID: deploymentID, DeviceRole: deviceRole, DataType: dataType}
	if err := id.Validate(); err != nil {
		return StreamID{}, err
	}
	return id, nil
}

// Validate checks every component of the stream id.
func (s StreamID) Validate() error {
	if s.DeploymentID == uuid.Nil {
		return fmt.Errorf("deployment id: %w", errors.ErrInvalidStreamID)
	}
	if err := validation.ValidateDeviceRole(s.DeviceRole); err != nil {
		return err
	}
	return validation.ValidateDataType(s.DataType.Namespace, s.DataType.Name)
}

// ParseStreamID parses a "deployment/role/namespace.name" reference.
func ParseStreamID(ref string) (StreamID, error) {
	r, err := validation.ParseStreamRef(ref)
	if err != nil {
		return StreamID{}, err
	}
	deploymentID, err := uuid.Parse(r.Deployment)
	if err != nil {
		return StreamID{}, fmt.Errorf("deployment id %q: %v: %w", r.Deployment, err, errors.ErrInvalidStreamID)
	}
	dataType, err := ParseDataType(r.DataType)
	if err != nil {
		return StreamID{}, err
	}
	return NewStreamID(deploymentID, r.DeviceRole, dataType)
}

// String returns the "deployment/role/namespace.name" reference.
func (s StreamID) String() string {
	return s.DeploymentID.String() + "/" + s.DeviceRole + "/" + s.DataType.String()
}

// ExpectedStream is one stream a deployment is configured to receive.
type ExpectedStream struct {
	DeviceRole string
	DataType   DataType
}

// DataStreamsConfiguration lists the streams expected for a study deployment.
type DataStreamsConfiguration struct {
	DeploymentID    uuid.UUID
	ExpectedStreams []ExpectedStream
}

// Validate checks the configuration. Every expected stream must be a valid,
// unique stream id for the deployment.
func (c *DataStreamsConfiguration) Validate() error {
	v := errors.NewValidationErrors()

	if c.DeploymentID == uuid.Nil {
		v.AddMissing("deployment_id")
	}
	if len(c.ExpectedStreams) == 0 {
		v.AddMissing("expected_streams")
	}

	seen := make(map[ExpectedStream]struct{}, len(c.ExpectedStreams))
	for i, e := range c.ExpectedStreams {
		if err := validation.ValidateDeviceRole(e.DeviceRole); err != nil {
			v.Add(fmt.Errorf("expected_streams[%d]: %w", i, err))
		}
		if err := validation.ValidateDataType(e.DataType.Namespace, e.DataType.Name); err != nil {
			v.Add(fmt.Errorf("expected_streams[%d]: %w", i, err))
		}
		if _, dup := seen[e]; dup {
			v.AddField(fmt.Sprintf("expected_streams[%d]", i), "duplicate stream "+e.DeviceRole+"/"+e.DataType.String())
		}
		seen[e] = struct{}{}
	}

	return v.Err()
}

// StreamIDs expands the configuration into stream ids.
func (c *DataStreamsConfiguration) StreamIDs() []StreamID {
	ids := make([]StreamID, len(c.ExpectedStreams))
	for i, e := range c.ExpectedStreams {
		ids[i] = StreamID{DeploymentID: c.DeploymentID, DeviceRole: e.DeviceRole, DataType: e.DataType}
	}
	return ids
}
