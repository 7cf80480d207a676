package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nhle/lms-monitor/internal/model"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoRecord is the item layout in the DynamoDB table. The partition
// key is identity_key, so a put replaces the previous record.
type dynamoRecord struct {
	IdentityKey        string  `dynamodbav:"identity_key"`
	Kind               string  `dynamodbav:"notification_type"`
	ContentFingerprint string  `dynamodbav:"content_fingerprint"`
	CourseCode         *string `dynamodbav:"course_code,omitempty"`
	Title              string  `dynamodbav:"title"`
	SentAt             int64   `dynamodbav:"sent_at"` // unix milliseconds
}

func toDynamoRecord(rec model.SentNotification) dynamoRecord {
	return dynamoRecord{
		IdentityKey:        rec.IdentityKey,
		Kind:               string(rec.Kind),
		ContentFingerprint: rec.ContentFingerprint,
		CourseCode:         rec.CourseCode,
		Title:              rec.Title,
		SentAt:             rec.SentAt.UnixMilli(),
	}
}

func (r dynamoRecord) toModel() model.SentNotification {
	return model.SentNotification{
		Kind:               model.Kind(r.Kind),
		IdentityKey:        r.IdentityKey,
		ContentFingerprint: r.ContentFingerprint,
		CourseCode:         r.CourseCode,
		Title:              r.Title,
		SentAt:             time.UnixMilli(r.SentAt).UTC(),
	}
}

// DynamoStore implements Store on a DynamoDB table.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore creates a DynamoDB client from the default AWS credential
// chain, or from static keys when both are set. Endpoint overrides the
// service URL (e.g. LocalStack).
func NewDynamoStore(ctx context.Context, cfg model.DynamoDBConfig) (*DynamoStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewDynamoStoreWithClient(dynamodb.NewFromConfig(awsCfg, clientOpts...), cfg.Table), nil
}

// NewDynamoStoreWithClient wraps an existing client.
func NewDynamoStoreWithClient(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// EnsureTable creates the table when it does not exist yet.
func (s *DynamoStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("identity_key"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("identity_key"), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// Close is a no-op; the AWS client holds no connections that need closing.
func (s *DynamoStore) Close() error { return nil }

// Ping checks that the table is reachable.
func (s *DynamoStore) Ping(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}); err != nil {
		return fmt.Errorf("describing table %s: %w", s.table, err)
	}
	return nil
}

func identityKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"identity_key": &types.AttributeValueMemberS{Value: key},
	}
}

// GetSent returns the record for identityKey, or ErrNotFound.
func (s *DynamoStore) GetSent(ctx context.Context, key string) (*model.SentNotification, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            identityKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting sent notification %s: %w", key, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var rec dynamoRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling sent notification %s: %w", key, err)
	}
	m := rec.toModel()
	return &m, nil
}

// UpsertSent writes rec, replacing any record with the same identity key.
func (s *DynamoStore) UpsertSent(ctx context.Context, rec model.SentNotification) error {
	item, err := attributevalue.MarshalMap(toDynamoRecord(rec))
	if err != nil {
		return fmt.Errorf("marshaling sent notification %s: %w", rec.IdentityKey, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("upserting sent notification %s: %w", rec.IdentityKey, err)
	}
	return nil
}

// scan walks every page of a filtered scan.
func (s *DynamoStore) scan(
	ctx context.Context,
	filter string,
	values map[string]types.AttributeValue,
	fn func([]map[string]types.AttributeValue) error,
) error {
	in := &dynamodb.ScanInput{TableName: aws.String(s.table)}
	if filter != "" {
		in.FilterExpression = aws.String(filter)
		in.ExpressionAttributeValues = values
	}

	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", s.table, err)
		}
		if err := fn(out.Items); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// DeleteSentBefore removes records sent before cutoff.
func (s *DynamoStore) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var keys []string
	err := s.scan(ctx, "sent_at < :cutoff", map[string]types.AttributeValue{
		":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff.UnixMilli(), 10)},
	}, func(items []map[string]types.AttributeValue) error {
		var recs []dynamoRecord
		if err := attributevalue.UnmarshalListOfMaps(items, &recs); err != nil {
			return fmt.Errorf("unmarshaling sent notifications: %w", err)
		}
		for _, r := range recs {
			keys = append(keys, r.IdentityKey)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, key := range keys {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key:       identityKey(key),
		})
		if err != nil {
			return deleted, fmt.Errorf("deleting sent notification %s: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}

func kindFilter(kind *model.Kind) (string, map[string]types.AttributeValue) {
	if kind == nil {
		return "", nil
	}
	return "notification_type = :kind", map[string]types.AttributeValue{
		":kind": &types.AttributeValueMemberS{Value: string(*kind)},
	}
}

// CountSent counts records, optionally of one kind.
func (s *DynamoStore) CountSent(ctx context.Context, kind *model.Kind) (int, error) {
	filter, values := kindFilter(kind)
	n := 0
	err := s.scan(ctx, filter, values, func(items []map[string]types.AttributeValue) error {
		n += len(items)
		return nil
	})
	return n, err
}

// ListSent returns records newest first.
func (s *DynamoStore) ListSent(ctx context.Context, f SentFilter) ([]model.SentNotification, error) {
	filter, values := kindFilter(f.Kind)
	var recs []model.SentNotification
	err := s.scan(ctx, filter, values, func(items []map[string]types.AttributeValue) error {
		var page []dynamoRecord
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return fmt.Errorf("unmarshaling sent notifications: %w", err)
		}
		for _, r := range page {
			recs = append(recs, r.toModel())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].SentAt.After(recs[j].SentAt) })
	if f.Limit > 0 && len(recs) > f.Limit {
		recs = recs[:f.Limit]
	}
	return recs, nil
}
