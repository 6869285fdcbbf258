package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/mahaprasad-donations/internal/aws"
)

// Store encapsulates operations on the categories table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
	newID     func() string
}

// NewStore creates a new category Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

// Create validates and inserts a new category, assigning its id and timestamps.
func (s *Store) Create(ctx context.Context, c Category) (Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return Category{}, err
	}
	now := s.nowFunc().UTC()
	c.ID = s.newID()
	c.CreatedAt = now
	c.UpdatedAt = now

	item, err := attributevalue.MarshalMap(toItem(c))
	if err != nil {
		return Category{}, fmt.Errorf("marshal category: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(category_id)"),
	})
	if err != nil {
		return Category{}, fmt.Errorf("put category: %w", err)
	}
	return c, nil
}

// Get fetches a category by id. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (Category, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       keyFor(id),
	})
	if err != nil {
		return Category{}, fmt.Errorf("get category: %w", err)
	}
	if len(out.Item) == 0 {
		return Category{}, ErrNotFound
	}
	var it categoryItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return Category{}, fmt.Errorf("unmarshal category: %w", err)
	}
	return it.toCategory()
}

// List returns every category sorted by name.
func (s *Store) List(ctx context.Context) ([]Category, error) {
	var (
		out   []Category
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan categories: %w", err)
		}
		var items []categoryItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal categories: %w", err)
		}
		for _, it := range items {
			c, err := it.toCategory()
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Active returns only categories donors may select.
func (s *Store) Active(ctx context.Context) ([]Category, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, c := range all {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active, nil
}

// Update overwrites an existing category. Concurrent edits are last-write-wins.
func (s *Store) Update(ctx context.Context, c Category) (Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return Category{}, err
	}
	existing, err := s.Get(ctx, c.ID)
	if err != nil {
		return Category{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.nowFunc().UTC()

	item, err := attributevalue.MarshalMap(toItem(c))
	if err != nil {
		return Category{}, fmt.Errorf("marshal category: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_exists(category_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return Category{}, ErrNotFound
		}
		return Category{}, fmt.Errorf("put category: %w", err)
	}
	return c, nil
}

// Delete removes a category. Historical donations keep their denormalised copy.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 keyFor(id),
		ConditionExpression: awsString("attribute_exists(category_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrNotFound
		}
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func keyFor(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"category_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }
