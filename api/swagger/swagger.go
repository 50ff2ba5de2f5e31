package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Edu Records API",
        "description": "Role-based academic records backend",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Signup, login and token lifecycle"},
        {"name": "Users", "description": "User accounts and profiles"},
        {"name": "Policies", "description": "Per-role visibility policies"},
        {"name": "Subjects", "description": "Subject catalogue"},
        {"name": "Assignments", "description": "Assignments, submissions and grading"},
        {"name": "Attendance", "description": "Daily attendance records"},
        {"name": "Marks", "description": "Exam and assessment marks"},
        {"name": "Reports", "description": "Asynchronous CSV/PDF exports"}
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a new account",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Invalid payload"},
                    "409": {"description": "Email or roll number taken"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate and issue tokens",
                "responses": {
                    "200": {"description": "Token pair"},
                    "401": {"description": "Bad credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate the refresh token",
                "responses": {
                    "200": {"description": "New token pair"},
                    "401": {"description": "Expired or revoked token"}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users visible to the caller",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Paginated users"},
                    "403": {"description": "Denied by role or policy"}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "tags": ["Users"],
                "summary": "User detail",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "User"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/admin/policies": {
            "get": {
                "tags": ["Policies"],
                "summary": "List visibility policies",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Policies"}}
            },
            "put": {
                "tags": ["Policies"],
                "summary": "Create or patch a role policy",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Updated policy"},
                    "400": {"description": "Unknown role"}
                }
            }
        },
        "/subjects": {
            "get": {
                "tags": ["Subjects"],
                "summary": "List subjects scoped to the caller",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Paginated subjects"}}
            }
        },
        "/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List assignments scoped to the caller",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Paginated assignments"}}
            }
        },
        "/student/assignments/{id}/submit": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Upload a submission file",
                "consumes": ["multipart/form-data"],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Submission recorded"},
                    "409": {"description": "Already submitted"}
                }
            }
        },
        "/faculty/assignments/{id}/submissions/{submissionId}/grade": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Grade a submission",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Graded submission"},
                    "403": {"description": "Not the assignment owner"}
                }
            }
        },
        "/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance scoped to the caller",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Paginated attendance"}}
            }
        },
        "/faculty/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark a session; re-marking updates in place",
                "security": [{"BearerAuth": []}],
                "responses": {"201": {"description": "Attendance record"}}
            }
        },
        "/marks": {
            "get": {
                "tags": ["Marks"],
                "summary": "List marks scoped to the caller",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Paginated marks"}}
            }
        },
        "/faculty/marks": {
            "post": {
                "tags": ["Marks"],
                "summary": "Record a score for one assessment",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Mark"},
                    "409": {"description": "Assessment already recorded"}
                }
            }
        },
        "/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue an attendance or marks export",
                "security": [{"BearerAuth": []}],
                "responses": {"202": {"description": "Job accepted"}}
            },
            "get": {
                "tags": ["Reports"],
                "summary": "List own export jobs",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Jobs"}}
            }
        },
        "/reports/download/{token}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a finished export by signed token",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
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
