// Package docs holds the OpenAPI document served at /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Ovaria"
        },
        "license": {
            "name": "MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "meta"
                ],
                "summary": "API root info",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": true
                        }
                    }
                }
            }
        },
        "/health": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "health"
                ],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": true
                        }
                    }
                }
            }
        },
        "/health/db": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "health"
                ],
                "summary": "Database health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": true
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "type": "object",
                            "additionalProperties": true
                        }
                    }
                }
            }
        },
        "/health/cache": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "health"
                ],
                "summary": "Cache health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": true
                        }
                    }
                }
            }
        },
        "/api/v1/users/{userID}/predictions/next-cycle": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "predictions"
                ],
                "summary": "Predict next cycle",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handler.PredictionResponse"
                        }
                    },
                    "304": {
                        "description": "Not modified"
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "description": "Estimates the next cycle start, PMS window, confidence and pattern. Returns {\"error\": \"...\"} with 200 when fewer than two cycles are logged.",
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Reference date (YYYY-MM-DD)",
                        "name": "today",
                        "in": "query"
                    }
                ]
            }
        },
        "/api/v1/users/{userID}/cycles": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "cycles"
                ],
                "summary": "List cycles",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/cycles.Entry"
                            }
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    }
                ]
            },
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "cycles"
                ],
                "summary": "Log a cycle",
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/cycles.Entry"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Request body",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handler.CreateCycleRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/users/{userID}/cycles/{entryID}": {
            "delete": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "cycles"
                ],
                "summary": "Delete a cycle",
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Cycle entry ID (uuid)",
                        "name": "entryID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/api/v1/users/{userID}/notification-preferences": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "preferences"
                ],
                "summary": "Get notification preferences",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/eligibility.Preferences"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    }
                ]
            },
            "put": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "preferences"
                ],
                "summary": "Update notification preferences",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/eligibility.Preferences"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Request body",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/eligibility.Preferences"
                        }
                    }
                ]
            }
        },
        "/api/v1/users/{userID}/notifications": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "notifications"
                ],
                "summary": "List notifications",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/notifications.Notification"
                            }
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "boolean",
                        "description": "Only unread",
                        "name": "unread",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Page size (default 50, max 200)",
                        "name": "limit",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Offset",
                        "name": "offset",
                        "in": "query"
                    }
                ]
            },
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "notifications"
                ],
                "summary": "Create a notification",
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/notifications.Notification"
                        }
                    },
                    "200": {
                        "description": "Suppressed",
                        "schema": {
                            "$ref": "#/definitions/handler.SuppressedResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "description": "Runs the eligibility check first. Suppressed notifications return 200 with created=false and the reason.",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Request body",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handler.CreateNotificationRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/users/{userID}/notifications/unread-count": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "notifications"
                ],
                "summary": "Unread notification count",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "integer"
                            }
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/api/v1/users/{userID}/notifications/eligibility": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "notifications"
                ],
                "summary": "Eligibility dry run",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/eligibility.Decision"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Request body",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handler.EligibilityRequest"
                        }
                    }
                ]
            }
        },
        "/api/v1/users/{userID}/notifications/read-all": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "notifications"
                ],
                "summary": "Mark all read",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "integer"
                            }
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/api/v1/users/{userID}/notifications/{id}/read": {
            "patch": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "notifications"
                ],
                "summary": "Mark read",
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Notification ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/api/v1/users/{userID}/notifications/{id}": {
            "delete": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "notifications"
                ],
                "summary": "Delete a notification",
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/respond.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID (uuid)",
                        "name": "userID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Notification ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        }
    },
    "definitions": {
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {
                            "type": "string"
                        },
                        "message": {
                            "type": "string"
                        },
                        "detail": {
                            "type": "string"
                        }
                    }
                }
            }
        },
        "prediction.Prediction": {
            "type": "object",
            "properties": {
                "nextCycleDate": {
                    "type": "string"
                },
                "pmsWindowStart": {
                    "type": "string"
                },
                "confidence": {
                    "type": "string",
                    "enum": [
                        "low",
                        "medium",
                        "high"
                    ]
                },
                "pattern": {
                    "type": "string",
                    "enum": [
                        "regular",
                        "somewhat_irregular",
                        "irregular",
                        "trending_longer",
                        "trending_shorter"
                    ]
                },
                "avgCycleLength": {
                    "type": "integer"
                },
                "basedOnCycles": {
                    "type": "integer"
                },
                "cycleLengths": {
                    "type": "array",
                    "items": {
                        "type": "integer"
                    }
                },
                "variation": {
                    "type": "number"
                },
                "daysUntilNextCycle": {
                    "type": "integer"
                }
            }
        },
        "handler.PredictionResponse": {
            "type": "object",
            "properties": {
                "prediction": {
                    "$ref": "#/definitions/prediction.Prediction"
                },
                "insights": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "cycles.Entry": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "userId": {
                    "type": "string"
                },
                "startDate": {
                    "type": "string"
                },
                "endDate": {
                    "type": "string"
                },
                "createdAt": {
                    "type": "string"
                }
            }
        },
        "handler.CreateCycleRequest": {
            "type": "object",
            "properties": {
                "startDate": {
                    "type": "string"
                },
                "endDate": {
                    "type": "string"
                }
            }
        },
        "eligibility.Preferences": {
            "type": "object",
            "properties": {
                "enableCycleReminders": {
                    "type": "boolean"
                },
                "enableMedicationReminders": {
                    "type": "boolean"
                },
                "enableSymptomReminders": {
                    "type": "boolean"
                },
                "enableAppointmentReminders": {
                    "type": "boolean"
                },
                "enableMilestones": {
                    "type": "boolean"
                },
                "enableRiskUpdates": {
                    "type": "boolean"
                },
                "enableDailyLogReminders": {
                    "type": "boolean"
                },
                "quietHoursEnabled": {
                    "type": "boolean"
                },
                "userId": {
                    "type": "string"
                },
                "quietHoursStart": {
                    "type": "string"
                },
                "quietHoursEnd": {
                    "type": "string"
                },
                "timezone": {
                    "type": "string"
                },
                "createdAt": {
                    "type": "string"
                },
                "updatedAt": {
                    "type": "string"
                }
            }
        },
        "eligibility.Decision": {
            "type": "object",
            "properties": {
                "allowed": {
                    "type": "boolean"
                },
                "reason": {
                    "type": "string",
                    "enum": [
                        "allowed",
                        "type_disabled",
                        "quiet_hours"
                    ]
                },
                "toggle": {
                    "type": "string"
                }
            }
        },
        "notifications.Notification": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "userId": {
                    "type": "string"
                },
                "type": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "priority": {
                    "type": "string",
                    "enum": [
                        "LOW",
                        "MEDIUM",
                        "HIGH"
                    ]
                },
                "actionUrl": {
                    "type": "string"
                },
                "scheduledFor": {
                    "type": "string"
                },
                "metadata": {
                    "type": "object",
                    "additionalProperties": true
                },
                "isRead": {
                    "type": "boolean"
                },
                "createdAt": {
                    "type": "string"
                }
            }
        },
        "handler.CreateNotificationRequest": {
            "type": "object",
            "properties": {
                "type": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "priority": {
                    "type": "string"
                },
                "actionUrl": {
                    "type": "string"
                },
                "scheduledFor": {
                    "type": "string"
                },
                "metadata": {
                    "type": "object",
                    "additionalProperties": true
                }
            }
        },
        "handler.SuppressedResponse": {
            "type": "object",
            "properties": {
                "created": {
                    "type": "boolean"
                },
                "reason": {
                    "type": "string"
                },
                "toggle": {
                    "type": "string"
                }
            }
        },
        "handler.EligibilityRequest": {
            "type": "object",
            "properties": {
                "type": {
                    "type": "string"
                },
                "at": {
                    "type": "string"
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "PCOS Tracker API",
	Description:      "Cycle prediction and preference-gated notifications for the PCOS tracker.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
