package recv

import (
	"github.com/Masterminds/semver/v3"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

const applicationNameSize = 256

// Open acknowledges a successful connection and identifies the host.
type Open struct {
	ApplicationName         string
	ApplicationVersion      *semver.Version
	ApplicationBuildVersion *semver.Version
	SimConnectVersion       *semver.Version
	SimConnectBuildVersion  *semver.Version
}

func (*Open) RecordName() string { return "Open" }

func readVersion(r *wire.Reader) (*semver.Version, error) {
	major, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	minor, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	return semver.New(uint64(major), uint64(minor), 0, "", ""), nil
}

func decodeOpen(r *wire.Reader) (*Open, error) {
	name, err := r.FixedString(applicationNameSize)
	if err != nil {
		return nil, err
	}

	open := &Open{ApplicationName: name}
	for _, dst := range []**semver.Version{
		&open.ApplicationVersion,
		&open.ApplicationBuildVersion,
		&open.SimConnectVersion,
		&open.SimConnectBuildVersion,
	} {
		if *dst, err = readVersion(r); err != nil {
			return nil, err
		}
	}

	return open, nil
}
