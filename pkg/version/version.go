package version

// Release version injected by the linker (-X github.com/certusone/wormhole/custody/pkg/version.version=...).
var version = "development"

func Version() string {
	if version == "" {
		panic("binary compiled with empty version")
	}
	return version
}
