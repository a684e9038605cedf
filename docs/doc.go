// Package docs provides generated OpenAPI documentation.
//
// Outline API
//
//	@title			Outline API
//	@version		1.0
//	@description	Chapter mapping API: align a template outline with a target outline, detect renumbering, and browse saved runs and LLM call history.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/outline
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8484
//	@BasePath	/
//
//	@schemes	http
package docs

//go:generate swag init -g ../cmd/outline/serve.go -o ./swagger --parseDependency --parseInternal
