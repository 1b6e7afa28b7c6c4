package version

import (
	"errors"
	"fmt"
	"regexp"
)

var semver = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

// BumpData inputs for a version bump
type BumpData struct {
	Name    string
	Version string
	OutFile string
}

// Bump regenerates the version file, commits it and tags the commit
func Bump(data BumpData, generator VersionGenerator, vc VersionControl) error {
	if !semver.MatchString(data.Version) {
		return errors.New("version must look like v1.2.3")
	}

	exists, err := vc.TagExists(data.Version)

	if err != nil {
		return err
	}

	if exists {
		return fmt.Errorf("%s is already tagged", data.Version)
	}

	dirty, err := vc.Dirty()

	if err != nil {
		return err
	}

	// the bump commit must contain nothing but the version file
	if dirty {
		return errors.New("working tree has uncommitted changes")
	}

	if err := generator.Generate(VersionData{NAME: data.Name, VERSION: data.Version}); err != nil {
		return err
	}

	if err := vc.Add(data.OutFile); err != nil {
		return err
	}

	if err := vc.Commit(fmt.Sprintf("Bump version %s", data.Version)); err != nil {
		return err
	}

	return vc.Tag(data.Version)
}
