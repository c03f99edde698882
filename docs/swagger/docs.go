// Package swagger 注册 Swagger 文档。
// 模板由 swag init 生成后手工维护。
package swagger

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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Check system health",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/send": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Send"],
                "summary": "发起转账",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/send/fee": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Send"],
                "summary": "预估手续费",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/send/tx/{hash}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Send"],
                "summary": "查询交易元数据",
                "parameters": [{"type": "string", "name": "hash", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/send/recent": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Send"],
                "summary": "最近交易",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/pair/accept": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Pairing"],
                "summary": "接受配对",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/pair/reject": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Pairing"],
                "summary": "拒绝配对",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/pair/ping": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Pairing"],
                "summary": "发送 PING",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/pair/inbox/fetch": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Pairing"],
                "summary": "拉取收件箱",
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Payments Core API",
	Description:      "Multi-currency payment sender and secure pairing service",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
