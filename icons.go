package main

import _ "embed"

var (
	//go:embed assets/icon.png
	iconData []byte

	//go:embed assets/icon_active.png
	iconDataActive []byte

	//go:embed assets/icon_ok.png
	iconDataOK []byte

	//go:embed assets/icon_error.png
	iconDataError []byte
)
