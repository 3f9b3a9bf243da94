// Package docs holds the OpenAPI document served under /swagger/. It
// mirrors the swag annotations on the worker handlers.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Readiness",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Cache statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/worker.StatsResponse"}}
                }
            }
        },
        "/api/version": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Build version",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Liveness and uptime",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/v1/create_labels/": {
            "post": {
                "description": "Embeds each article, clusters the batch and attaches a short label to every clustered article. Noise articles come back unlabeled.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["labels"],
                "summary": "Label a batch of articles",
                "parameters": [
                    {
                        "type": "string",
                        "description": "OpenAI API key, required for non-empty batches",
                        "name": "X-Open-Ai-Api-Key",
                        "in": "header"
                    },
                    {
                        "description": "Articles to label",
                        "name": "articles",
                        "in": "body",
                        "required": true,
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Article"}}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Article"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/worker.errorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/worker.errorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/worker.errorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/worker.errorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/worker.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "cache.StatsSnapshot": {
            "type": "object",
            "properties": {
                "entries": {"type": "integer"},
                "hits": {"type": "integer"},
                "misses": {"type": "integer"},
                "store_errors": {"type": "integer"},
                "ttl_seconds": {"type": "integer"}
            }
        },
        "models.Article": {
            "type": "object",
            "additionalProperties": true,
            "properties": {
                "content": {"type": "string", "x-nullable": true},
                "label": {"type": "string", "x-nullable": true},
                "title": {"type": "string", "x-nullable": true}
            }
        },
        "worker.StatsResponse": {
            "type": "object",
            "properties": {
                "cache": {"$ref": "#/definitions/cache.StatsSnapshot"},
                "cache_enabled": {"type": "boolean"},
                "uptime": {"type": "string"},
                "uptime_seconds": {"type": "integer"},
                "version": {"type": "string"}
            }
        },
        "worker.errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "request_id": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "newslabels API",
	Description:      "Groups news articles by semantic similarity and labels each group.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
