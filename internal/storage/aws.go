package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/domain"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

// runPartition is the partition key shared by every analytics run.
const runPartition = "ANALYTICS_RUN"

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// DynamoDBItem represents a run stored in DynamoDB
type DynamoDBItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
}

// loadAWSConfig resolves credentials from the profile when set, else the default chain.
func loadAWSConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// DynamoRunStore persists runs as items under one partition, sorted by run time.
type DynamoRunStore struct {
	client    dynamoAPI
	tableName string
	archive   *S3Archive
}

// NewDynamoRunStore builds the store and, when bucket is set, an S3 archive.
func NewDynamoRunStore(ctx context.Context, tableName, bucket, region, profile string) (*DynamoRunStore, error) {
	cfg, err := loadAWSConfig(ctx, region, profile)
	if err != nil {
		return nil, err
	}
	store := &DynamoRunStore{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}
	if bucket != "" {
		store.archive = newS3Archive(s3.NewFromConfig(cfg), bucket)
	}
	return store, nil
}

func newDynamoRunStore(client dynamoAPI, tableName string, archive *S3Archive) *DynamoRunStore {
	return &DynamoRunStore{client: client, tableName: tableName, archive: archive}
}

// Save writes the run item. The S3 copy is best effort.
func (s *DynamoRunStore) Save(ctx context.Context, r *domain.AnalyticsResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	item := DynamoDBItem{
		PK:        runPartition,
		SK:        sortKey(r),
		Data:      string(data),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting run item: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.Put(ctx, r, data); err != nil {
			logger.Warn("run archive failed", "run_id", r.ID, "error", err)
		}
	}
	return nil
}

// Latest queries the partition newest-first and takes one item.
func (s *DynamoRunStore) Latest(ctx context.Context) (*domain.AnalyticsResult, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: runPartition},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, analytics.ErrNoRuns
	}

	var item DynamoDBItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	var r domain.AnalyticsResult
	if err := json.Unmarshal([]byte(item.Data), &r); err != nil {
		return nil, fmt.Errorf("decoding run: %w", err)
	}
	return &r, nil
}

// S3Archive writes a JSON copy of each run, partitioned by run date.
type S3Archive struct {
	client s3API
	bucket string
}

func newS3Archive(client s3API, bucket string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket}
}

// ArchiveKey returns runs/YYYY/MM/DD/<id>.json.
func ArchiveKey(r *domain.AnalyticsResult) string {
	return fmt.Sprintf("runs/%s/%s.json", r.RunAt.UTC().Format("2006/01/02"), r.ID)
}

// Put uploads the encoded run.
func (a *S3Archive) Put(ctx context.Context, r *domain.AnalyticsResult, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ArchiveKey(r)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading to S3: %w", err)
	}
	return nil
}
