package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Fee Ledger API",
        "description": "Fee balances, payments, concessions, admissions and promotions for one school branch per token.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Fees",
            "description": "Per-enrollment tuition and transport ledgers"
        },
        {
            "name": "Payments",
            "description": "Payment posting and the income ledger"
        },
        {
            "name": "Reservations",
            "description": "Admission lifecycle"
        },
        {
            "name": "Promotions",
            "description": "Year-end promotion and dropout"
        },
        {
            "name": "Dashboard",
            "description": "Collection summaries"
        },
        {
            "name": "Receipts",
            "description": "Signed receipt downloads"
        }
    ],
    "paths": {
        "/enrollments/{id}/balances/{kind}": {
            "get": {
                "tags": [
                    "Fees"
                ],
                "summary": "Get a fee balance",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "kind",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "enum": [
                            "tuition",
                            "transport"
                        ]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/enrollments/{id}/outstanding": {
            "get": {
                "tags": [
                    "Fees"
                ],
                "summary": "Total outstanding fees of an enrollment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/enrollments/{id}/balances/{kind}/payments": {
            "post": {
                "tags": [
                    "Fees"
                ],
                "summary": "Pay a single term or the book fee",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "kind",
                        "in": "path",
                        "type": "string",
                        "required": true,
                        "enum": [
                            "tuition",
                            "transport"
                        ]
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ApplyPaymentRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Storage unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/enrollments/{id}/concession": {
            "put": {
                "tags": [
                    "Fees"
                ],
                "summary": "Grant a concession on an enrollment's ledgers",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GrantConcessionRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/enrollments/{id}/dropout": {
            "post": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Record a dropout",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/DropoutRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Precondition failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/payments": {
            "post": {
                "tags": [
                    "Payments"
                ],
                "summary": "Post a payment",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/PostPaymentRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Storage unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/income": {
            "get": {
                "tags": [
                    "Payments"
                ],
                "summary": "List income records",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "enrollmentId",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "purpose",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/income/export": {
            "get": {
                "tags": [
                    "Payments"
                ],
                "summary": "Export the income ledger",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "purpose",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "type": "string",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "CSV or XLSX file",
                        "schema": {
                            "type": "file"
                        }
                    }
                },
                "produces": [
                    "text/csv",
                    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
                ]
            }
        },
        "/reservations": {
            "post": {
                "tags": [
                    "Reservations"
                ],
                "summary": "Submit an application",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateReservationRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "get": {
                "tags": [
                    "Reservations"
                ],
                "summary": "List reservations",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "status",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "search",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/reservations/{id}": {
            "get": {
                "tags": [
                    "Reservations"
                ],
                "summary": "Get a reservation",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/reservations/{id}/application-fee": {
            "post": {
                "tags": [
                    "Reservations"
                ],
                "summary": "Record the application fee",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ReservationPaymentRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/reservations/{id}/concession": {
            "put": {
                "tags": [
                    "Reservations"
                ],
                "summary": "Grant a concession before confirmation",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GrantConcessionRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/reservations/{id}/confirm": {
            "post": {
                "tags": [
                    "Reservations"
                ],
                "summary": "Confirm a reservation and enroll the student",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/ConfirmReservationRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Precondition failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/reservations/{id}/cancel": {
            "post": {
                "tags": [
                    "Reservations"
                ],
                "summary": "Cancel a pending reservation",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "type": "string",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/CancelReservationRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions/eligibility": {
            "get": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Evaluate promotion eligibility",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "classId",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "academicYearId",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "search",
                        "in": "query",
                        "type": "string",
                        "required": false
                    },
                    {
                        "name": "requireFeesPaid",
                        "in": "query",
                        "type": "boolean",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/promotions": {
            "post": {
                "tags": [
                    "Promotions"
                ],
                "summary": "Promote a batch of enrollments",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/PromoteRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Precondition failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/dashboard/fees": {
            "get": {
                "tags": [
                    "Dashboard"
                ],
                "summary": "Fee collection dashboard",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "academicYearId",
                        "in": "query",
                        "type": "string",
                        "required": false
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/receipts/{token}": {
            "get": {
                "tags": [
                    "Receipts"
                ],
                "summary": "Download a payment receipt",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "type": "string",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "PDF receipt",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "403": {
                        "description": "Invalid or expired link",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not rendered yet",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                },
                "produces": [
                    "application/pdf"
                ]
            }
        }
    },
    "definitions": {
        "PaymentDetailRequest": {
            "type": "object",
            "properties": {
                "purpose": {
                    "type": "string",
                    "enum": [
                        "ADMISSION_FEE",
                        "TUITION_FEE",
                        "TRANSPORT_FEE",
                        "BOOK_FEE",
                        "APPLICATION_FEE",
                        "OTHER"
                    ]
                },
                "term_number": {
                    "type": "integer"
                },
                "amount": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "method": {
                    "type": "string"
                }
            },
            "required": [
                "purpose",
                "amount",
                "method"
            ]
        },
        "PostPaymentRequest": {
            "type": "object",
            "properties": {
                "enrollment_id": {
                    "type": "string"
                },
                "admission_no": {
                    "type": "string"
                },
                "details": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/PaymentDetailRequest"
                    }
                },
                "remarks": {
                    "type": "string"
                }
            },
            "required": [
                "details"
            ]
        },
        "ApplyPaymentRequest": {
            "type": "object",
            "properties": {
                "term_number": {
                    "type": "integer"
                },
                "book": {
                    "type": "boolean"
                },
                "amount": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "method": {
                    "type": "string"
                },
                "remarks": {
                    "type": "string"
                }
            },
            "required": [
                "amount",
                "method"
            ]
        },
        "GrantConcessionRequest": {
            "type": "object",
            "properties": {
                "tuition_amount": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "transport_amount": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "remarks": {
                    "type": "string"
                }
            }
        },
        "CreateReservationRequest": {
            "type": "object",
            "properties": {
                "student_name": {
                    "type": "string"
                },
                "student_id": {
                    "type": "string"
                },
                "class_id": {
                    "type": "string"
                },
                "academic_year_id": {
                    "type": "string"
                },
                "application_fee": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "tuition_fee": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "transport_fee": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "book_fee": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "tuition_concession": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "transport_concession": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "remarks": {
                    "type": "string"
                }
            },
            "required": [
                "student_name",
                "class_id",
                "academic_year_id"
            ]
        },
        "ReservationPaymentRequest": {
            "type": "object",
            "properties": {
                "amount": {
                    "type": "string",
                    "description": "decimal amount"
                },
                "method": {
                    "type": "string"
                }
            },
            "required": [
                "amount",
                "method"
            ]
        },
        "ConfirmReservationRequest": {
            "type": "object",
            "properties": {
                "remarks": {
                    "type": "string"
                },
                "admission_fee": {
                    "$ref": "#/definitions/ReservationPaymentRequest"
                },
                "admission_no": {
                    "type": "string"
                },
                "section_id": {
                    "type": "string"
                },
                "roll_number": {
                    "type": "string"
                }
            }
        },
        "CancelReservationRequest": {
            "type": "object",
            "properties": {
                "remarks": {
                    "type": "string"
                }
            }
        },
        "PromoteRequest": {
            "type": "object",
            "properties": {
                "next_academic_year_id": {
                    "type": "string"
                },
                "require_fees_paid": {
                    "type": "boolean"
                },
                "enrollment_ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            },
            "required": [
                "next_academic_year_id",
                "enrollment_ids"
            ]
        },
        "DropoutRequest": {
            "type": "object",
            "properties": {
                "reason": {
                    "type": "string"
                },
                "date": {
                    "type": "string",
                    "format": "date-time"
                }
            },
            "required": [
                "reason"
            ]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "resource_id": {
                    "type": "string"
                },
                "retryable": {
                    "type": "boolean"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
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
