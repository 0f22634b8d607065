package models

// ListDocumentsRequest represents query parameters for listing document
// metadata through the admin API.
type ListDocumentsRequest struct {
	Owner  string `form:"owner"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ListGrantsRequest represents query parameters for listing grants through
// the admin API.
type ListGrantsRequest struct {
	DocumentID string `form:"document_id"`
	Grantee    string `form:"grantee"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}
