package server

import "github.com/nedpals/davi-nfc-writer/buildinfo"

// mDNS service discovery
var (
	MDNSServiceType = "_nfc-writer._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// API route prefix
const APIPrefix = "/api/v1"

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)
