package types

// FieldType names the declared type of a schema property
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeNumber   FieldType = "number"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
	FieldTypeObjectID FieldType = "objectId"
	FieldTypeObject   FieldType = "object"
	FieldTypeArray    FieldType = "array"
	FieldTypeMixed    FieldType = "mixed"

	// FieldTypeDateCipher is a date that is stored as ciphertext and cast back to a date on read
	FieldTypeDateCipher FieldType = "dateCipher"
)

// IsScalar reports whether values of this type are leaves
func (t FieldType) IsScalar() bool {
	switch t {
	case FieldTypeObject, FieldTypeArray, FieldTypeMixed:
		return false
	}
	return true
}

// Valid reports whether t is a known field type. The empty type is accepted and
// inferred from the shape of the property.
func (t FieldType) Valid() bool {
	switch t {
	case "", FieldTypeString, FieldTypeNumber, FieldTypeBoolean, FieldTypeDate,
		FieldTypeObjectID, FieldTypeObject, FieldTypeArray, FieldTypeMixed, FieldTypeDateCipher:
		return true
	}
	return false
}

// Property is one node of a model's raw property definition tree.
//
// Object nodes carry Properties, array nodes carry the element definition in Items.
// A node with Encrypt set applies to every scalar leaf below it.
type Property struct {
	Type       FieldType  `json:"type,omitempty" bson:"type,omitempty"`
	Encrypt    bool       `json:"encrypt,omitempty" bson:"encrypt,omitempty"`
	Required   bool       `json:"required,omitempty" bson:"required,omitempty"`
	Properties Properties `json:"properties,omitempty" bson:"properties,omitempty"`
	Items      *Property  `json:"items,omitempty" bson:"items,omitempty"`

	// IsSchema marks a validation-schema meta object. Such nodes are not document data.
	IsSchema bool `json:"$schema,omitempty" bson:"$schema,omitempty"`
}

// Properties maps field names to their definitions
type Properties map[string]*Property

// ModelDefinition is the raw, uncompiled description of a model
type ModelDefinition struct {
	Name       string     `json:"name" bson:"name"`
	Collection string     `json:"collection,omitempty" bson:"collection,omitempty"`
	Properties Properties `json:"properties" bson:"properties"`
}
