// Package apidocs holds the OpenAPI document served by the swagger build.
// It mirrors what `swag init -g cmd/sdserve/docs.go` produces.
package apidocs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "produces": ["application/json"],
                "summary": "Welcome message",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.WelcomeResponse"}}
                }
            }
        },
        "/generate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Generate an image from a text prompt",
                "parameters": [
                    {
                        "description": "Generation parameters",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.GenerateRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.GenerateResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Service status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/readyz": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "ready"},
                    "503": {"description": "loading"}
                }
            }
        }
    },
    "definitions": {
        "types.WelcomeResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "types.GenerateRequest": {
            "type": "object",
            "required": ["prompt"],
            "properties": {
                "prompt": {"type": "string", "example": "a red apple on a wooden table"},
                "num_inference_steps": {"type": "integer", "default": 50, "example": 50},
                "guidance_scale": {"type": "number", "default": 7.5, "example": 7.5}
            }
        },
        "types.GenerateResponse": {
            "type": "object",
            "properties": {
                "image": {"type": "string", "description": "Base64-encoded PNG"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "detail": {"type": "string"},
                "code": {"type": "integer"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "ready"},
                "backend": {"type": "string"},
                "model": {"type": "string"},
                "generations_total": {"type": "integer"},
                "generations_failed": {"type": "integer"},
                "inflight": {"type": "integer"},
                "queue_len": {"type": "integer"},
                "max_queue_depth": {"type": "integer"},
                "last_error": {"type": "string"},
                "uptime_seconds": {"type": "integer"},
                "server_time_unix": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "sdserve API",
	Description:      "HTTP API for text-to-image generation with Stable Diffusion.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
