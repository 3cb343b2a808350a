// Package docs registers the OpenAPI document served under /swagger.
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
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/api/v1/users/me": {
            "get": {"tags": ["用户"], "summary": "我的资料", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["用户"], "summary": "更新我的资料", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/discover": {
            "get": {"tags": ["发现"], "summary": "发现页候选", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/discover/{user_id}/like": {
            "post": {"tags": ["发现"], "summary": "喜欢", "security": [{"BearerAuth": []}], "parameters": [{"name": "user_id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/discover/{user_id}/dislike": {
            "post": {"tags": ["发现"], "summary": "不喜欢", "security": [{"BearerAuth": []}], "parameters": [{"name": "user_id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/matches": {
            "get": {"tags": ["发现"], "summary": "匹配列表", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/conversations": {
            "get": {"tags": ["会话"], "summary": "会话列表", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/conversations/{id}": {
            "get": {"tags": ["会话"], "summary": "会话详情", "security": [{"BearerAuth": []}], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/conversations/{id}/messages": {
            "get": {"tags": ["会话"], "summary": "消息分页", "security": [{"BearerAuth": []}], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "limit", "in": "query", "type": "integer"}, {"name": "cursor", "in": "query", "type": "string"}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["会话"], "summary": "发送文本消息", "security": [{"BearerAuth": []}], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"201": {"description": "Created"}}}
        },
        "/api/v1/conversations/{id}/voice": {
            "post": {"tags": ["会话"], "summary": "发送语音消息", "security": [{"BearerAuth": []}], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"201": {"description": "Created"}}}
        },
        "/ws": {
            "get": {"tags": ["实时"], "summary": "实时消息通道（websocket）", "parameters": [{"name": "token", "in": "query", "type": "string"}], "responses": {"101": {"description": "Switching Protocols"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Unveil API",
	Description:      "Text-first dating: conversations progressively reveal profile photos.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
