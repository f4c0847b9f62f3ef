package testdata

import _ "embed"

//go:embed configs/config.yaml
var TestGenericConfig string

//go:embed configs/replies.yaml
var TestReplyScript string
