package internal

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/sigmaql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectGetter struct {
	body  string
	err   error
	input *s3.GetObjectInput
}

func (f *fakeObjectGetter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

const s3SchemaJSON = `{
	"entities": {
		"users": {"table": "users", "fields": ["id", "name"], "relations": {"posts": {"type": "one-to-many", "target": "posts"}}},
		"posts": {"table": "posts", "fields": ["id", "title"]}
	}
}`

const s3SchemaYAML = `
entities:
  users:
    fields: [id, name]
`

func TestS3SchemaSource_LoadJSON(t *testing.T) {
	getter := &fakeObjectGetter{body: s3SchemaJSON}
	source := NewS3SchemaSource(getter, "schemas", "prod/schema.json")

	root, err := source.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, root.Entities, 2)
	assert.Equal(t, "posts", root.Entities["users"].Relations["posts"].Target)

	require.NotNil(t, getter.input)
	assert.Equal(t, "schemas", aws.ToString(getter.input.Bucket))
	assert.Equal(t, "prod/schema.json", aws.ToString(getter.input.Key))
}

func TestS3SchemaSource_LoadYAMLByKeyExtension(t *testing.T) {
	source := NewS3SchemaSource(&fakeObjectGetter{body: s3SchemaYAML}, "schemas", "schema.yml")

	root, err := source.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, root.Entities["users"].Fields)
}

func TestS3SchemaSource_NotFound(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	source := NewS3SchemaSource(&fakeObjectGetter{err: apiErr}, "schemas", "schema.json")

	_, err := source.Load(context.Background())
	require.Error(t, err)

	qe, ok := sigmaql.AsQueryError(err)
	require.True(t, ok)
	assert.Equal(t, sigmaql.ErrCodeSchemaLoadFailed, qe.Code)
	assert.Equal(t, "schema object s3://schemas/schema.json not found", qe.Message)
	assert.Equal(t, "NoSuchKey", qe.Details["awsCode"])
	assert.ErrorIs(t, err, apiErr)
}

func TestS3SchemaSource_FetchFailure(t *testing.T) {
	source := NewS3SchemaSource(&fakeObjectGetter{err: errors.New("dial tcp: i/o timeout")}, "schemas", "schema.json")

	_, err := source.Load(context.Background())
	require.Error(t, err)

	qe, ok := sigmaql.AsQueryError(err)
	require.True(t, ok)
	assert.Equal(t, sigmaql.ErrCodeSchemaLoadFailed, qe.Code)
	assert.Contains(t, qe.Message, "failed to fetch schema object s3://schemas/schema.json")
	assert.Nil(t, qe.Details)
}

func TestS3SchemaSource_InvalidDocument(t *testing.T) {
	source := NewS3SchemaSource(&fakeObjectGetter{body: `{"entities": {}}`}, "schemas", "schema.json")

	_, err := source.Load(context.Background())
	require.Error(t, err)
	assert.True(t, sigmaql.IsKind(err, sigmaql.ErrorKindSchema))
}
