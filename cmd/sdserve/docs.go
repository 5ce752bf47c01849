package main

// General API documentation for swaggo. Regenerate internal/apidocs with
// `swag init -g cmd/sdserve/docs.go -o internal/apidocs`.
//
// @title           sdserve API
// @version         1.0
// @description     HTTP API for text-to-image generation with Stable Diffusion.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
