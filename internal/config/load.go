package config

import (
	"os"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Load reads CUE files from a directory and decodes them into Settings,
// then normalizes and validates the result.
//
// Using CUE keeps constraint checking (types, list shapes) in the loader:
// a muting block whose mute_forms is a string instead of a list fails here,
// before any transition initialises.
func Load(dir string) (*Settings, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, NewError("settings directory not found: %s", dir)
	}
	if err != nil {
		return nil, NewError("error accessing settings directory: %v", err)
	}
	if !info.IsDir() {
		return nil, NewError("not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir, Package: "_"}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, NewError("no CUE instances loaded from %s", dir)
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, NewError("loading CUE files: %v", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if value.Err() != nil {
		return nil, NewError("building settings: %v", value.Err())
	}

	var settings Settings
	if err := value.Decode(&settings); err != nil {
		return nil, NewError("decoding settings: %v", err)
	}

	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}
