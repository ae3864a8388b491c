// Copyright OGC Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package docs embeds the admin API description.
package docs

import _ "embed"

//go:embed openapi.yaml
var OpenAPISpec []byte
