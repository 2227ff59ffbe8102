// Package docs holds the OpenAPI document served under /swagger/. Keep it
// in step with the swag annotations on the airdrop handlers.
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
        "/": {
            "get": {
                "description": "Sends the fixed grant to the address once. The response is written after the transfer is finalized.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "airdrop"
                ],
                "summary": "Request the airdrop",
                "parameters": [
                    {
                        "type": "string",
                        "description": "SS58 recipient address",
                        "name": "to",
                        "in": "query",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Auth token, also accepted as a bearer token",
                        "name": "token",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/http.DisburseResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/airdrops/{address}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "airdrop"
                ],
                "summary": "Get the disbursement record for an address",
                "parameters": [
                    {
                        "type": "string",
                        "description": "SS58 recipient address",
                        "name": "address",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Auth token, also accepted as a bearer token",
                        "name": "token",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/http.DisbursementResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "http.DisburseResponse": {
            "type": "object",
            "properties": {
                "amount": {
                    "type": "number"
                },
                "success": {
                    "type": "boolean"
                },
                "txHash": {
                    "type": "string"
                }
            }
        },
        "http.DisbursementResponse": {
            "type": "object",
            "properties": {
                "amount": {
                    "type": "number"
                },
                "blockHash": {
                    "type": "string"
                },
                "createdAt": {
                    "type": "string"
                },
                "failureReason": {
                    "type": "string"
                },
                "geo": {
                    "$ref": "#/definitions/http.GeoResponse"
                },
                "nonce": {
                    "type": "integer"
                },
                "recipient": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                },
                "txHash": {
                    "type": "string"
                },
                "updatedAt": {
                    "type": "string"
                }
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "success": {
                    "type": "boolean"
                }
            }
        },
        "http.GeoResponse": {
            "type": "object",
            "properties": {
                "city": {
                    "type": "string"
                },
                "country": {
                    "type": "string"
                },
                "country_code": {
                    "type": "string"
                },
                "ip_address": {
                    "type": "string"
                },
                "isp": {
                    "type": "string"
                },
                "latitude": {
                    "type": "number"
                },
                "longitude": {
                    "type": "number"
                },
                "region": {
                    "type": "string"
                },
                "region_name": {
                    "type": "string"
                },
                "timezone": {
                    "type": "string"
                },
                "zip": {
                    "type": "string"
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Faucet API",
	Description:      "Idempotent token airdrop service.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
