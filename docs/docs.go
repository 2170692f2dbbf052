// Package docs registers the OpenAPI description served under /swagger.
// Regenerate with `swag init -g cmd/server/main.go` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/api/v1/auth/login": {
            "post": {"tags": ["auth"], "summary": "Coordinator login", "consumes": ["application/json"], "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "400": {"description": "invalid body"}, "401": {"description": "invalid credentials"}}}
        },
        "/api/v1/questions": {
            "post": {"tags": ["questions"], "summary": "Create a question", "security": [{"BearerAuth": []}],
                "consumes": ["application/json"], "produces": ["application/json"],
                "responses": {"201": {"description": "Created"}, "400": {"description": "invalid question"}, "401": {"description": "unauthorized"}, "403": {"description": "forbidden"}}}
        },
        "/api/v1/questions/{id}": {
            "get": {"tags": ["questions"], "summary": "Get a question", "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "invalid id"}, "404": {"description": "not found"}}}
        },
        "/api/v1/questions/{id}/state": {
            "get": {"tags": ["questions"], "summary": "Current state of a question", "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}}
        },
        "/api/v1/questions/{id}/consensus": {
            "get": {"tags": ["questions"], "summary": "Consensus of a question", "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}}
        },
        "/api/v1/questions/{id}/changelog": {
            "get": {"tags": ["questions"], "summary": "Change log of a question", "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"type": "integer", "name": "depth", "in": "query"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "invalid depth"}, "404": {"description": "not found"}}}
        },
        "/api/v1/questions/{id}/options": {
            "post": {"tags": ["options"], "summary": "Propose an option", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "invalid option"}, "404": {"description": "not found"}, "429": {"description": "rate limited"}}}
        },
        "/api/v1/questions/{id}/opinions/message": {
            "post": {"tags": ["opinions"], "summary": "Message to sign for an opinion", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "invalid ballot"}, "404": {"description": "not found"}}}
        },
        "/api/v1/questions/{id}/opinions": {
            "post": {"tags": ["opinions"], "summary": "Submit an opinion", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "invalid ballot"}, "401": {"description": "invalid signature"}, "404": {"description": "not found"}, "429": {"description": "rate limited"}}}
        },
        "/api/v1/questions/{id}/weights/{opinionator}": {
            "put": {"tags": ["questions"], "summary": "Set an opinionator's weight", "security": [{"BearerAuth": []}],
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}, {"type": "string", "name": "opinionator", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "invalid weight"}, "401": {"description": "unauthorized"}, "404": {"description": "not found"}}}
        },
        "/api/v1/questions/{id}/results": {
            "post": {"tags": ["questions"], "summary": "Recalculate results", "security": [{"BearerAuth": []}], "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "unauthorized"}, "404": {"description": "not found"}}}
        },
        "/api/v1/content/{cid}": {
            "get": {"tags": ["content"], "summary": "Raw content", "produces": ["application/cbor"],
                "parameters": [{"type": "string", "name": "cid", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "invalid id"}, "404": {"description": "not found"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Hivemind API",
	Description:      "Ranked-choice consensus on content-addressed questions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
