package models

// SCIM schema identifiers
const (
	ScimUserSchema      = "urn:ietf:params:scim:schemas:core:2.0:User"
	ScimGroupSchema     = "urn:ietf:params:scim:schemas:core:2.0:Group"
	ScimPatchOpSchema   = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
	ScimListSchema      = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
	ScimErrorSchema     = "urn:ietf:params:scim:api:messages:2.0:Error"
	ScimUserExtensionID = "urn:ietf:params:scim:schemas:extension:directory:2.0:User"
)

// ScimName is the structured name of a remote user
type ScimName struct {
	GivenName       string `json:"givenName,omitempty"`
	FamilyName      string `json:"familyName,omitempty"`
	HonorificPrefix string `json:"honorificPrefix,omitempty"`
	HonorificSuffix string `json:"honorificSuffix,omitempty"`
}

// MultiValue is a type-discriminated SCIM attribute entry (email, phone number, role)
type MultiValue struct {
	Type    string `json:"type,omitempty"`
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// ScimAddress is a remote user address
type ScimAddress struct {
	Type          string `json:"type,omitempty"`
	Formatted     string `json:"formatted,omitempty"`
	StreetAddress string `json:"streetAddress,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	Country       string `json:"country,omitempty"`
	Primary       bool   `json:"primary,omitempty"`
}

// Claim is a free-form key/value carried by the user extension
type Claim struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ScimUserExtension holds the directory-specific user attributes
type ScimUserExtension struct {
	PartyCode string  `json:"partyCode,omitempty"`
	Blocked   bool    `json:"blocked,omitempty"`
	Claims    []Claim `json:"claims,omitempty"`
}

// GroupRef is a read-only membership reference on a remote user
type GroupRef struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
	Ref     string `json:"$ref,omitempty"`
}

// ScimUser is the remote representation of a user
type ScimUser struct {
	Schemas           []string           `json:"schemas,omitempty"`
	ID                string             `json:"id,omitempty"`
	ExternalID        string             `json:"externalId,omitempty"`
	UserName          string             `json:"userName"`
	Name              *ScimName          `json:"name,omitempty"`
	DisplayName       string             `json:"displayName,omitempty"`
	NickName          string             `json:"nickName,omitempty"`
	ProfileURL        string             `json:"profileUrl,omitempty"`
	Title             string             `json:"title,omitempty"`
	UserType          string             `json:"userType,omitempty"`
	PreferredLanguage string             `json:"preferredLanguage,omitempty"`
	Locale            string             `json:"locale,omitempty"`
	Timezone          string             `json:"timezone,omitempty"`
	Active            bool               `json:"active"`
	Password          string             `json:"password,omitempty"`
	Emails            []MultiValue       `json:"emails,omitempty"`
	PhoneNumbers      []MultiValue       `json:"phoneNumbers,omitempty"`
	Addresses         []ScimAddress      `json:"addresses,omitempty"`
	Roles             []MultiValue       `json:"roles,omitempty"`
	Groups            []GroupRef         `json:"groups,omitempty"`
	Extension         *ScimUserExtension `json:"urn:ietf:params:scim:schemas:extension:directory:2.0:User,omitempty"`
}

// Ext returns the extension, never nil
func (u *ScimUser) Ext() *ScimUserExtension {
	if u.Extension == nil {
		u.Extension = &ScimUserExtension{}
	}
	return u.Extension
}

// Member is a remote group member reference
type Member struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
	Type    string `json:"type,omitempty"`
}

// ScimGroup is the remote representation of a group
type ScimGroup struct {
	Schemas     []string     `json:"schemas,omitempty"`
	ID          string       `json:"id,omitempty"`
	ExternalID  string       `json:"externalId,omitempty"`
	DisplayName string       `json:"displayName"`
	Members     []Member     `json:"members,omitempty"`
	Roles       []MultiValue `json:"roles,omitempty"`
}

// PatchOpKind is the verb of a patch operation
type PatchOpKind string

const (
	PatchAdd     PatchOpKind = "add"
	PatchReplace PatchOpKind = "replace"
	PatchRemove  PatchOpKind = "remove"
)

// PatchOperation is one step of a SCIM PATCH request
type PatchOperation struct {
	Op    PatchOpKind `json:"op"`
	Path  string      `json:"path,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// PatchRequest is the body of a SCIM PATCH call
type PatchRequest struct {
	Schemas    []string         `json:"schemas"`
	Operations []PatchOperation `json:"Operations"`
}

// NewPatchRequest wraps ops in a PatchOp message
func NewPatchRequest(ops []PatchOperation) PatchRequest {
	return PatchRequest{Schemas: []string{ScimPatchOpSchema}, Operations: ops}
}

// ListResponse is a SCIM query result page
type ListResponse[T any] struct {
	Schemas      []string `json:"schemas"`
	TotalResults int      `json:"totalResults"`
	StartIndex   int      `json:"startIndex,omitempty"`
	ItemsPerPage int      `json:"itemsPerPage,omitempty"`
	Resources    []T      `json:"Resources"`
}
