package version

import (
	"encoding/json"
	"log"
	"runtime/debug"
)

// Version is a json string with the vcs revision and build time baked in
// by the go toolchain.
var Version = func() string {
	type versionInfo struct {
		Commit string `json:"commit"`
		Time   string `json:"time"`
		Go     string `json:"go"`
	}
	v := versionInfo{}
	if info, ok := debug.ReadBuildInfo(); ok {
		v.Go = info.GoVersion
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				v.Commit = setting.Value
			case "vcs.time":
				v.Time = setting.Value
			}
		}
	}
	b, err := json.Marshal(&v)
	if err != nil {
		log.Fatal(err)
	}

	return string(b)
}()
