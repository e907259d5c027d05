package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Progress API",
        "description": "Grade scales, term results, rankings and progress trends",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Grade Scales", "description": "Grading tables per academic level"},
        {"name": "Progress", "description": "Result generation, rankings and trends"},
        {"name": "Metrics", "description": "Operational counters"}
    ],
    "paths": {
        "/metrics/summary": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Service counters snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grade-scales": {
            "get": {
                "tags": ["Grade Scales"],
                "summary": "List grade scales",
                "parameters": [
                    {"name": "academicLevel", "in": "query", "type": "string"},
                    {"name": "default", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Grade Scales"],
                "summary": "Create grade scale",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradeScaleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Scale is invalid", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grade-scales/validate": {
            "post": {
                "tags": ["Grade Scales"],
                "summary": "Validate a scale without saving it",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradeScaleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grade-scales/{id}": {
            "get": {
                "tags": ["Grade Scales"],
                "summary": "Get grade scale",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grade-scales/{id}/default": {
            "post": {
                "tags": ["Grade Scales"],
                "summary": "Make the scale the default for its academic level",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grade-scales/{id}/lookup": {
            "post": {
                "tags": ["Grade Scales"],
                "summary": "Grade a percentage",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradeLookupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/progress/generate": {
            "post": {
                "tags": ["Progress"],
                "summary": "Queue a progress regeneration",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateProgressRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A run for the academic year is already active", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/progress/jobs/{id}": {
            "get": {
                "tags": ["Progress"],
                "summary": "Progress job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/progress/jobs/{id}/cancel": {
            "post": {
                "tags": ["Progress"],
                "summary": "Cancel a progress job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job already finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/progress/students/{id}": {
            "get": {
                "tags": ["Progress"],
                "summary": "Student term history and trend",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "academicYear", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/progress/classes/{id}/rankings": {
            "get": {
                "tags": ["Progress"],
                "summary": "Class or stream ranking for a term",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "termId", "in": "query", "required": true, "type": "string"},
                    {"name": "stream", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/progress/classes/{id}/distribution": {
            "get": {
                "tags": ["Progress"],
                "summary": "Grade distribution for a class term",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "termId", "in": "query", "required": true, "type": "string"},
                    {"name": "subjectId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "GradeRangeRequest": {
            "type": "object",
            "required": ["grade"],
            "properties": {
                "grade": {"type": "string"},
                "minPercent": {"type": "number"},
                "maxPercent": {"type": "number"},
                "points": {"type": "integer"},
                "label": {"type": "string"}
            }
        },
        "GradeScaleRequest": {
            "type": "object",
            "required": ["name", "academicLevel", "ranges", "passingGrade"],
            "properties": {
                "name": {"type": "string"},
                "academicLevel": {"type": "string"},
                "ranges": {"type": "array", "items": {"$ref": "#/definitions/GradeRangeRequest"}},
                "passingGrade": {"type": "string"},
                "passingPercentage": {"type": "number"},
                "roundingUnit": {"type": "number", "enum": [1, 0.5, 0.1]},
                "subjectOverrides": {"type": "object", "additionalProperties": {"type": "array", "items": {"$ref": "#/definitions/GradeRangeRequest"}}},
                "makeDefault": {"type": "boolean"}
            }
        },
        "GradeLookupRequest": {
            "type": "object",
            "required": ["percentage"],
            "properties": {
                "percentage": {"type": "number"},
                "subjectId": {"type": "string"}
            }
        },
        "GenerateProgressRequest": {
            "type": "object",
            "required": ["academicYear"],
            "properties": {
                "academicYear": {"type": "string"},
                "classId": {"type": "string"},
                "studentId": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
