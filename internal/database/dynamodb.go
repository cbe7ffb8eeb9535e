package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/voice-annotation/internal/cloud"
	"github.com/codebuildervaibhav/voice-annotation/internal/config"
	"github.com/codebuildervaibhav/voice-annotation/internal/types"
)

const (
	projectIndexName = "project_id-index"
	projectIDPrefix  = "proj_"
	annotationPrefix = "anno_"
	nameGuardPrefix  = "name#"

	// Fixed width so string order matches time order.
	dynamoTimeLayout = "2006-01-02T15:04:05.000000Z"
)

type projectItem struct {
	ID            string `dynamodbav:"id"`
	Name          string `dynamodbav:"project_name"`
	Description   string `dynamodbav:"description"`
	WorkspacePath string `dynamodbav:"workspace_path"`
	CreatedAt     string `dynamodbav:"created_at"`
}

type annotationItem struct {
	ID                 string  `dynamodbav:"id"`
	ProjectID          string  `dynamodbav:"project_id"`
	AudioFilename      string  `dynamodbav:"audio_filename"`
	AudioPath          string  `dynamodbav:"audio_path"`
	Transcript         string  `dynamodbav:"transcript"`
	OriginalTranscript string  `dynamodbav:"original_transcript"`
	RecordingMode      string  `dynamodbav:"recording_mode"`
	Language           string  `dynamodbav:"language"`
	Duration           float64 `dynamodbav:"duration"`
	Deleted            string  `dynamodbav:"deleted,omitempty"`
	CreatedAt          string  `dynamodbav:"created_at"`
	UpdatedAt          string  `dynamodbav:"updated_at"`
}

// DynamoRepository stores projects and annotations in two DynamoDB tables.
// Project names are kept unique with a guard item in the projects table.
type DynamoRepository struct {
	client           dynamodbiface.DynamoDBAPI
	projectsTable    string
	annotationsTable string
	region           string
	now              func() time.Time
}

// NewDynamoRepository connects to DynamoDB and creates the tables when they
// do not exist yet.
func NewDynamoRepository(ctx context.Context, cfg *config.Config) (*DynamoRepository, error) {
	sess, err := cloud.NewAWSSession(cfg.AWS, cfg.Database.DynamoRegion, cfg.Database.DynamoEndpoint)
	if err != nil {
		return nil, err
	}

	repo := newDynamoRepository(dynamodb.New(sess), cfg.Database)
	if err := repo.ensureTable(ctx, repo.projectsTable, false); err != nil {
		return nil, err
	}
	if err := repo.ensureTable(ctx, repo.annotationsTable, true); err != nil {
		return nil, err
	}
	return repo, nil
}

func newDynamoRepository(client dynamodbiface.DynamoDBAPI, cfg config.DatabaseConfig) *DynamoRepository {
	return &DynamoRepository{
		client:           client,
		projectsTable:    cfg.ProjectsTable,
		annotationsTable: cfg.AnnotationsTable,
		region:           cfg.DynamoRegion,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (r *DynamoRepository) ensureTable(ctx context.Context, name string, withProjectIndex bool) error {
	_, err := r.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err == nil {
		return nil
	}
	if !isAWSCode(err, dynamodb.ErrCodeResourceNotFoundException) {
		return fmt.Errorf("describe table %s: %w", name, err)
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: aws.String(dynamodb.KeyTypeHash)},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	}
	if withProjectIndex {
		input.AttributeDefinitions = append(input.AttributeDefinitions, &dynamodb.AttributeDefinition{
			AttributeName: aws.String("project_id"),
			AttributeType: aws.String(dynamodb.ScalarAttributeTypeS),
		})
		input.GlobalSecondaryIndexes = []*dynamodb.GlobalSecondaryIndex{{
			IndexName: aws.String(projectIndexName),
			KeySchema: []*dynamodb.KeySchemaElement{
				{AttributeName: aws.String("project_id"), KeyType: aws.String(dynamodb.KeyTypeHash)},
			},
			Projection: &dynamodb.Projection{ProjectionType: aws.String(dynamodb.ProjectionTypeAll)},
		}}
	}

	if _, err := r.client.CreateTableWithContext(ctx, input); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	if err := r.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}); err != nil {
		return fmt.Errorf("wait for table %s: %w", name, err)
	}
	return nil
}

func (r *DynamoRepository) ListProjects(ctx context.Context) ([]types.Project, error) {
	var (
		items     []projectItem
		decodeErr error
	)
	err := r.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(r.projectsTable),
		FilterExpression:          aws.String("begins_with(id, :prefix)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{":prefix": {S: aws.String(projectIDPrefix)}},
	}, func(page *dynamodb.ScanOutput, _ bool) bool {
		var batch []projectItem
		if decodeErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); decodeErr != nil {
			return false
		}
		items = append(items, batch...)
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make([]types.Project, 0, len(items))
	for _, it := range items {
		count, err := r.countAnnotations(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		p := it.toProject()
		p.AnnotationCount = count
		projects = append(projects, p)
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func (r *DynamoRepository) CreateProject(ctx context.Context, name, description, workspacePath string) (*types.Project, error) {
	now := r.now()
	it := projectItem{
		ID:            projectIDPrefix + uuid.NewString(),
		Name:          name,
		Description:   description,
		WorkspacePath: workspacePath,
		CreatedAt:     now.Format(dynamoTimeLayout),
	}
	av, err := dynamodbattribute.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal project: %w", err)
	}

	guard := map[string]*dynamodb.AttributeValue{
		"id":         {S: aws.String(nameGuardPrefix + name)},
		"project_id": {S: aws.String(it.ID)},
	}

	_, err = r.client.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []*dynamodb.TransactWriteItem{
			{Put: &dynamodb.Put{
				TableName:           aws.String(r.projectsTable),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			}},
			{Put: &dynamodb.Put{
				TableName:           aws.String(r.projectsTable),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			}},
		},
	})
	if err != nil {
		if isConditionCancelled(err) {
			return nil, ErrProjectExists
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	p := it.toProject()
	return &p, nil
}

func (r *DynamoRepository) GetProject(ctx context.Context, id string) (*types.Project, error) {
	if !strings.HasPrefix(id, projectIDPrefix) {
		return nil, ErrProjectNotFound
	}

	out, err := r.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.projectsTable),
		Key:       map[string]*dynamodb.AttributeValue{"id": {S: aws.String(id)}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrProjectNotFound
	}

	var it projectItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("failed to decode project: %w", err)
	}
	count, err := r.countAnnotations(ctx, id)
	if err != nil {
		return nil, err
	}
	p := it.toProject()
	p.AnnotationCount = count
	return &p, nil
}

func (r *DynamoRepository) activeAnnotationsQuery(projectID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(r.annotationsTable),
		IndexName:              aws.String(projectIndexName),
		KeyConditionExpression: aws.String("project_id = :pid"),
		FilterExpression:       aws.String("attribute_not_exists(deleted) OR deleted = :n"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pid": {S: aws.String(projectID)},
			":n":   {S: aws.String("N")},
		},
	}
}

func (r *DynamoRepository) countAnnotations(ctx context.Context, projectID string) (int, error) {
	input := r.activeAnnotationsQuery(projectID)
	input.Select = aws.String(dynamodb.SelectCount)

	count := 0
	err := r.client.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, _ bool) bool {
		count += int(aws.Int64Value(page.Count))
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count annotations: %w", err)
	}
	return count, nil
}

func (r *DynamoRepository) ListAnnotations(ctx context.Context, projectID string) ([]types.Annotation, error) {
	var (
		items     []annotationItem
		decodeErr error
	)
	err := r.client.QueryPagesWithContext(ctx, r.activeAnnotationsQuery(projectID), func(page *dynamodb.QueryOutput, _ bool) bool {
		var batch []annotationItem
		if decodeErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); decodeErr != nil {
			return false
		}
		items = append(items, batch...)
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}

	annotations := make([]types.Annotation, 0, len(items))
	for _, it := range items {
		annotations = append(annotations, it.toAnnotation())
	}
	sort.SliceStable(annotations, func(i, j int) bool {
		return annotations[i].CreatedAt.After(annotations[j].CreatedAt)
	})
	return annotations, nil
}

func (r *DynamoRepository) SaveAnnotation(ctx context.Context, a *types.Annotation) (*types.Annotation, error) {
	if _, err := r.GetProject(ctx, a.ProjectID); err != nil {
		return nil, err
	}

	now := r.now().Format(dynamoTimeLayout)
	it := annotationItem{
		ID:                 annotationPrefix + uuid.NewString(),
		ProjectID:          a.ProjectID,
		AudioFilename:      a.AudioFilename,
		AudioPath:          a.AudioPath,
		Transcript:         a.Transcript,
		OriginalTranscript: a.Transcript,
		RecordingMode:      a.RecordingMode,
		Language:           a.Language,
		Duration:           a.Duration,
		Deleted:            "N",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if it.Language == "" {
		it.Language = "en"
	}

	av, err := dynamodbattribute.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal annotation: %w", err)
	}
	_, err = r.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.annotationsTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save annotation: %w", err)
	}

	saved := it.toAnnotation()
	return &saved, nil
}

func (r *DynamoRepository) GetAnnotation(ctx context.Context, id string) (*types.Annotation, error) {
	out, err := r.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.annotationsTable),
		Key:       map[string]*dynamodb.AttributeValue{"id": {S: aws.String(id)}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrAnnotationNotFound
	}

	var it annotationItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("failed to decode annotation: %w", err)
	}
	a := it.toAnnotation()
	return &a, nil
}

func (r *DynamoRepository) UpdateTranscript(ctx context.Context, id, transcript string) error {
	return r.updateAnnotation(ctx, id, "SET transcript = :v, updated_at = :u", transcript)
}

func (r *DynamoRepository) DeleteAnnotation(ctx context.Context, id string) error {
	return r.updateAnnotation(ctx, id, "SET deleted = :v, updated_at = :u", "Y")
}

func (r *DynamoRepository) updateAnnotation(ctx context.Context, id, expr, value string) error {
	_, err := r.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.annotationsTable),
		Key:                 map[string]*dynamodb.AttributeValue{"id": {S: aws.String(id)}},
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":v": {S: aws.String(value)},
			":u": {S: aws.String(r.now().Format(dynamoTimeLayout))},
		},
	})
	if err != nil {
		if isAWSCode(err, dynamodb.ErrCodeConditionalCheckFailedException) {
			return ErrAnnotationNotFound
		}
		return fmt.Errorf("failed to update annotation %s: %w", id, err)
	}
	return nil
}

func (r *DynamoRepository) GetAnnotationByFilename(ctx context.Context, filename string) (*types.Annotation, error) {
	var found *annotationItem
	err := r.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName:                 aws.String(r.annotationsTable),
		FilterExpression:          aws.String("audio_filename = :f"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{":f": {S: aws.String(filename)}},
	}, func(page *dynamodb.ScanOutput, _ bool) bool {
		for _, item := range page.Items {
			var it annotationItem
			if err := dynamodbattribute.UnmarshalMap(item, &it); err == nil {
				found = &it
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find annotation by filename: %w", err)
	}
	if found == nil {
		return nil, ErrAnnotationNotFound
	}
	a := found.toAnnotation()
	return &a, nil
}

func (r *DynamoRepository) Mode() string {
	return ModeDynamoDB
}

func (r *DynamoRepository) Info() map[string]any {
	return map[string]any{
		"database_mode":      ModeDynamoDB,
		"dynamodb_region":    r.region,
		"projects_table":     r.projectsTable,
		"annotations_table":  r.annotationsTable,
		"dynamodb_available": true,
	}
}

func (r *DynamoRepository) Close() error {
	return nil
}

func (it projectItem) toProject() types.Project {
	return types.Project{
		ID:            it.ID,
		Name:          it.Name,
		Description:   it.Description,
		WorkspacePath: it.WorkspacePath,
		CreatedAt:     parseDynamoTime(it.CreatedAt),
	}
}

func (it annotationItem) toAnnotation() types.Annotation {
	return types.Annotation{
		ID:                 it.ID,
		ProjectID:          it.ProjectID,
		AudioFilename:      it.AudioFilename,
		AudioPath:          it.AudioPath,
		Transcript:         it.Transcript,
		OriginalTranscript: it.OriginalTranscript,
		RecordingMode:      it.RecordingMode,
		Language:           it.Language,
		Duration:           it.Duration,
		Deleted:            it.Deleted == "Y",
		CreatedAt:          parseDynamoTime(it.CreatedAt),
		UpdatedAt:          parseDynamoTime(it.UpdatedAt),
	}
}

func parseDynamoTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isAWSCode(err error, code string) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == code
}

// isConditionCancelled reports whether a transaction was cancelled because
// one of its condition expressions failed.
func isConditionCancelled(err error) bool {
	var tce *dynamodb.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.StringValue(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	return isAWSCode(err, dynamodb.ErrCodeTransactionCanceledException) &&
		strings.Contains(err.Error(), "ConditionalCheckFailed")
}
