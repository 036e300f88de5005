package main

// General API documentation for swaggo. Regenerate with `swag init -g cmd/enginectl/docs.go -o docs`.
//
// @title           enginectl API
// @version         1.0
// @description     HTTP API for installing and supervising local inference engines and running download jobs.
//
// @contact.name   enginectl maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
