// Package docs holds the swagger document for the enginectl HTTP API.
// Regenerate with `swag init -g cmd/enginectl/docs.go -o docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "enginectl maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/engines": {
            "get": {
                "produces": ["application/json"],
                "tags": ["engines"],
                "summary": "List engines",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.EnginesResponse"}}
                }
            }
        },
        "/v1/engines/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["engines"],
                "summary": "Get one engine",
                "parameters": [
                    {"type": "string", "description": "Engine name or alias", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.EngineRecord"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/engines/{name}/install": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["engines"],
                "summary": "Install an engine in the background",
                "parameters": [
                    {"type": "string", "description": "Engine name or alias", "name": "name", "in": "path", "required": true},
                    {"description": "Install options", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/types.InstallEngineRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.OperationResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/process": {
            "get": {
                "produces": ["application/json"],
                "tags": ["process"],
                "summary": "Engine process state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ProcessStatus"}}
                }
            }
        },
        "/v1/process/start": {
            "post": {
                "produces": ["application/json"],
                "tags": ["process"],
                "summary": "Start the engine process and wait until it is healthy",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.OperationResult"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/process/stop": {
            "post": {
                "produces": ["application/json"],
                "tags": ["process"],
                "summary": "Stop the engine process",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.OperationResult"}}
                }
            }
        },
        "/v1/downloads": {
            "get": {
                "produces": ["application/json"],
                "tags": ["downloads"],
                "summary": "Active download jobs",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.DownloadStateResponse"}}
                }
            },
            "post": {
                "description": "Returns 202 when the job was registered and 200 when a job with the same id is already active.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["downloads"],
                "summary": "Submit a download job",
                "parameters": [
                    {"description": "Job", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.SubmitDownloadRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SubmitDownloadResponse"}},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.SubmitDownloadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/downloads/events": {
            "get": {
                "description": "Each event carries the full active job list. The first event is the current state.",
                "produces": ["text/event-stream"],
                "tags": ["downloads"],
                "summary": "Stream download snapshots as server-sent events",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/types.DownloadJob"}}}
                }
            }
        },
        "/v1/downloads/{id}": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["downloads"],
                "summary": "Abort a download job",
                "parameters": [
                    {"type": "string", "description": "Job id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.OperationResult"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.DownloadItem": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string"},
                "progress": {"type": "integer"},
                "size": {"$ref": "#/definitions/types.DownloadSize"},
                "error": {"type": "string"}
            }
        },
        "types.DownloadJob": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "type": {"type": "string"},
                "status": {"type": "string"},
                "progress": {"type": "integer"},
                "error": {"type": "string"},
                "children": {"type": "array", "items": {"$ref": "#/definitions/types.DownloadItem"}}
            }
        },
        "types.DownloadSize": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "transferred": {"type": "integer"}
            }
        },
        "types.DownloadStateResponse": {
            "type": "object",
            "properties": {
                "jobs": {"type": "array", "items": {"$ref": "#/definitions/types.DownloadJob"}}
            }
        },
        "types.DownloadTarget": {
            "type": "object",
            "properties": {
                "url": {"type": "string", "example": "https://example.com/files/a.bin"},
                "destination": {"type": "string", "example": "/tmp/a.bin"}
            }
        },
        "types.EngineRecord": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "cortex.llamacpp"},
                "productName": {"type": "string"},
                "description": {"type": "string"},
                "version": {"type": "string", "example": "0.1.25"},
                "installed": {"type": "boolean", "example": true}
            }
        },
        "types.EnginesResponse": {
            "type": "object",
            "properties": {
                "engines": {"type": "array", "items": {"$ref": "#/definitions/types.EngineRecord"}}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid JSON body"},
                "code": {"type": "integer", "example": 400}
            }
        },
        "types.InstallEngineRequest": {
            "type": "object",
            "properties": {
                "options": {"$ref": "#/definitions/types.InstallOptions"},
                "version": {"type": "string", "example": "latest"},
                "force": {"type": "boolean", "example": false}
            }
        },
        "types.InstallOptions": {
            "type": "object",
            "properties": {
                "runMode": {"type": "string", "example": "GPU"},
                "gpuType": {"type": "string", "example": "Nvidia"},
                "cudaVersion": {"type": "string", "example": "12"},
                "instructions": {"type": "string", "example": "AVX2"},
                "vulkan": {"type": "boolean", "example": false}
            }
        },
        "types.OperationResult": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Engine started successfully"},
                "status": {"type": "string", "example": "success"}
            }
        },
        "types.ProcessStatus": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "healthy"},
                "host": {"type": "string", "example": "127.0.0.1"},
                "port": {"type": "integer", "example": 3929},
                "pid": {"type": "integer", "example": 12345}
            }
        },
        "types.SubmitDownloadRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "j1"},
                "title": {"type": "string", "example": "Example files"},
                "type": {"type": "string", "example": "model"},
                "targets": {"type": "array", "items": {"$ref": "#/definitions/types.DownloadTarget"}},
                "parallel": {"type": "boolean", "example": false}
            }
        },
        "types.SubmitDownloadResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "j1"},
                "accepted": {"type": "boolean", "example": true}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "enginectl API",
	Description:      "HTTP API for installing and supervising local inference engines and running download jobs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
