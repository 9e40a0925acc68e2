// Package docs holds the Swagger description served at /api/swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
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
        "/listings": {
            "get": {
                "description": "Filtered, sorted and paged listing query. Text search and filters are combined.",
                "produces": ["application/json"],
                "tags": ["listings"],
                "summary": "Browse listings",
                "parameters": [
                    {"type": "string", "description": "Free-text search", "name": "q", "in": "query"},
                    {"type": "string", "description": "offer or search", "name": "category", "in": "query"},
                    {"type": "string", "description": "newest, oldest, price_asc, price_desc, popular, most_liked, deadline", "name": "sort", "in": "query"},
                    {"type": "integer", "description": "Page size (max 100)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PagedListings"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Creates an active listing, or a draft when draft is true.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["listings"],
                "summary": "Create a listing",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.Listing"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/listings/similar": {
            "get": {
                "description": "Ranks active listings by similarity to q. Falls back to text search when the vector path has no answer.",
                "produces": ["application/json"],
                "tags": ["listings"],
                "summary": "Semantic listing search",
                "parameters": [
                    {"type": "string", "description": "Query text", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "description": "Result count (max 50)", "name": "k", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.SimilarResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/listings/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["listings"],
                "summary": "Get a listing",
                "parameters": [
                    {"type": "integer", "description": "Listing ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Listing"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/listings/{id}/like": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["listings"],
                "summary": "Like or unlike a listing",
                "parameters": [
                    {"type": "integer", "description": "Listing ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.LikeResult"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/listings/{id}/applications": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Seekers may apply once per listing and a limited number of times per UTC day.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["applications"],
                "summary": "Apply to a listing",
                "parameters": [
                    {"type": "integer", "description": "Listing ID", "name": "id", "in": "path", "required": true},
                    {"description": "Optional message", "name": "request", "in": "body", "schema": {"type": "object", "properties": {"message": {"type": "string"}}}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.Application"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/listings/{id}/invitations": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["invitations"],
                "summary": "Invite a prior applicant",
                "parameters": [
                    {"type": "integer", "description": "Listing ID", "name": "id", "in": "path", "required": true},
                    {"description": "Invitation", "name": "request", "in": "body", "required": true, "schema": {"type": "object", "properties": {"invitee_id": {"type": "integer"}, "message": {"type": "string"}}}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.Invitation"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/applications/{id}/status": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["applications"],
                "summary": "Accept or reject an application",
                "parameters": [
                    {"type": "integer", "description": "Application ID", "name": "id", "in": "path", "required": true},
                    {"description": "accepted or rejected", "name": "request", "in": "body", "required": true, "schema": {"type": "object", "properties": {"status": {"type": "string"}}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Application"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/uploads": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Decodes the image, bounds its dimensions, re-encodes it as WebP and stores it.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["uploads"],
                "summary": "Upload a listing image",
                "parameters": [
                    {"type": "file", "description": "Image file", "name": "image", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/server.UploadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/ws/ticket": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["realtime"],
                "summary": "Issue a websocket ticket",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"ticket": {"type": "string"}, "expires_in": {"type": "integer"}}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "details": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "models.Listing": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "user_id": {"type": "integer"},
                "category": {"type": "string"},
                "type": {"type": "string"},
                "status": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "city": {"type": "string"},
                "price": {"type": "number"},
                "hashtags": {"type": "array", "items": {"type": "string"}},
                "images": {"type": "array", "items": {"type": "string"}},
                "views": {"type": "integer"},
                "likes_count": {"type": "integer"},
                "deadline": {"type": "string"}
            }
        },
        "models.PagedListings": {
            "type": "object",
            "properties": {
                "listings": {"type": "array", "items": {"$ref": "#/definitions/models.Listing"}},
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
            }
        },
        "models.Application": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "listing_id": {"type": "integer"},
                "applicant_id": {"type": "integer"},
                "status": {"type": "string"},
                "message": {"type": "string"},
                "application_date": {"type": "string"}
            }
        },
        "models.Invitation": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "listing_id": {"type": "integer"},
                "inviter_id": {"type": "integer"},
                "invitee_id": {"type": "integer"},
                "status": {"type": "string"},
                "message": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "service.LikeResult": {
            "type": "object",
            "properties": {
                "liked": {"type": "boolean"},
                "likes_count": {"type": "integer"}
            }
        },
        "service.SimilarResult": {
            "type": "object",
            "properties": {
                "listings": {"type": "array", "items": {"$ref": "#/definitions/models.Listing"}},
                "source": {"type": "string"}
            }
        },
        "server.UploadResponse": {
            "type": "object",
            "properties": {
                "url": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Billboard API",
	Description:      "Housing marketplace: listings, applications, invitations, comments and realtime notifications.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
