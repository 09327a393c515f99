package a

import "os"

func configure() {
	os.Setenv("FORGE_MODE", "dev")
}
