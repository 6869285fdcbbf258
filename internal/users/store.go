package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/mahaprasad-donations/internal/aws"
)

// ErrNotFound is returned when the user id is unknown.
var ErrNotFound = errors.New("user not found")

// Store reads users from the registry table. The table is owned by the user
// registry; this service never writes to it.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a users Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get fetches a user by id.
func (s *Store) Get(ctx context.Context, id string) (User, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if len(out.Item) == 0 {
		return User{}, ErrNotFound
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return User{}, fmt.Errorf("unmarshal user: %w", err)
	}
	return u, nil
}
