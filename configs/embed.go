// Package configs provides the embedded configuration template for
// the helpdesk service. Embedding at build time keeps the template
// available in every distribution, source builds and binary releases
// alike.
package configs

import _ "embed"

// ExampleConfig is the annotated helpdesk.yaml template written by
// 'helpdesk init'.
//
//go:embed helpdesk.example.yaml
var ExampleConfig string
