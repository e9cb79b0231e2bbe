package vectorstoreclient

import (
	"context"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// FieldType names the payload field types the indexing pipeline indexes.
type FieldType string

const (
	FieldKeyword FieldType = "keyword"
	FieldInteger FieldType = "integer"
	FieldBool    FieldType = "bool"
)

func (t FieldType) toQdrant() qdrant.FieldType {
	switch t {
	case FieldInteger:
		return qdrant.FieldType_FieldTypeInteger
	case FieldBool:
		return qdrant.FieldType_FieldTypeBool
	default:
		return qdrant.FieldType_FieldTypeKeyword
	}
}

// CreatePayloadIndex ensures a payload index exists on fieldName. A 409
// response (index already exists) is treated as success; PayloadIndexManager
// relies on that to make this call idempotent.
func (c *Client) CreatePayloadIndex(ctx context.Context, collection, fieldName string, fieldType FieldType) error {
	qft := fieldType.toQdrant()
	_, err := c.qc.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      fieldName,
		FieldType:      &qft,
	})
	if err != nil {
		if isAlreadyExists(err) || strings.Contains(strings.ToLower(err.Error()), "conflict") {
			return nil
		}
		return classify("create_payload_index", err)
	}
	return nil
}

// ListPayloadIndexes returns the payload field names that currently have an
// index, read off the collection's schema.
func (c *Client) ListPayloadIndexes(ctx context.Context, collection string) ([]string, error) {
	info, err := c.qc.GetCollectionInfo(ctx, collection)
	if err != nil {
		return nil, classify("list_payload_indexes", err)
	}
	schema := info.GetPayloadSchema()
	names := make([]string, 0, len(schema))
	for field := range schema {
		names = append(names, field)
	}
	return names, nil
}
