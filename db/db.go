package db

import (
	"context"
	"encoding/json"

	"github.com/jsphweid/harmondrill/constants"
	"github.com/jsphweid/harmondrill/model"
	"github.com/pkg/errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

var ErrChartNotFound = errors.New("chart not found")

// BatchGetItem refuses more than 100 keys per request
const maxBatchKeys = 100

// how many times unprocessed keys are retried before giving up
const maxBatchAttempts = 3

type chartItem struct {
	PK       string  `dynamodbav:"PK"`
	Title    string  `dynamodbav:"Title"`
	Composer string  `dynamodbav:"Composer,omitempty"`
	Year     uint    `dynamodbav:"Year,omitempty"`
	Tempo    float64 `dynamodbav:"Tempo"`
	Snapshot string  `dynamodbav:"Snapshot,omitempty"`
}

func (c chartItem) metadata() model.ChartMetadata {
	return model.ChartMetadata{Title: c.Title, Composer: c.Composer, Year: c.Year, Tempo: c.Tempo}
}

// ChartStore keeps chart snapshots in a DynamoDB table keyed by chart id.
type ChartStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

// NewChartStore connects to the table named by CHART_TABLE at
// DYNAMO_ENDPOINT.
func NewChartStore() (*ChartStore, error) {
	endpoint := constants.GetDynamoEndpoint()
	sess, err := session.NewSession(&aws.Config{
		Region:   aws.String(constants.GetDynamoRegion()),
		Endpoint: &endpoint,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create a new DynamoDB session")
	}
	return NewChartStoreWithClient(dynamodb.New(sess), constants.GetChartTable()), nil
}

func NewChartStoreWithClient(client dynamodbiface.DynamoDBAPI, table string) *ChartStore {
	return &ChartStore{client: client, table: table}
}

func key(id string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"PK": {S: aws.String(id)},
	}
}

func (s *ChartStore) GetSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	out, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key(id),
	})
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "could not get chart %s", id)
	}
	if len(out.Item) == 0 {
		return model.Snapshot{}, errors.Wrapf(ErrChartNotFound, "chart %s", id)
	}

	var item chartItem
	if err := dynamodbattribute.UnmarshalMap(out.Item, &item); err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "chart %s has a malformed item", id)
	}
	if item.Snapshot == "" {
		return model.Snapshot{}, errors.Errorf("chart %s has no snapshot", id)
	}

	var snap model.Snapshot
	if err := json.Unmarshal([]byte(item.Snapshot), &snap); err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "chart %s has a malformed snapshot", id)
	}
	if snap.ID == "" {
		snap.ID = id
	}
	if snap.Title == "" {
		snap.Title = item.Title
	}
	return snap, nil
}

// PutSnapshot stores snap under snap.ID along with its catalogue entry.
func (s *ChartStore) PutSnapshot(ctx context.Context, snap model.Snapshot, meta model.ChartMetadata) error {
	if snap.ID == "" {
		return errors.New("snapshot needs an id to be stored")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "could not encode snapshot")
	}
	if meta.Title == "" {
		meta.Title = snap.Title
	}
	if meta.Tempo == 0 {
		meta.Tempo = snap.Tempo
	}

	item, err := dynamodbattribute.MarshalMap(chartItem{
		PK:       snap.ID,
		Title:    meta.Title,
		Composer: meta.Composer,
		Year:     meta.Year,
		Tempo:    meta.Tempo,
		Snapshot: string(data),
	})
	if err != nil {
		return errors.Wrap(err, "could not encode chart item")
	}
	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return errors.Wrapf(err, "could not put chart %s", snap.ID)
}

// GetChartMetadatas looks up catalogue entries without fetching snapshots.
// Ids that are not in the table are missing from the result.
func (s *ChartStore) GetChartMetadatas(ctx context.Context, ids []string) (map[string]model.ChartMetadata, error) {
	res := make(map[string]model.ChartMetadata)

	for start := 0; start < len(ids); start += maxBatchKeys {
		end := start + maxBatchKeys
		if end > len(ids) {
			end = len(ids)
		}

		var keys []map[string]*dynamodb.AttributeValue
		for _, id := range ids[start:end] {
			keys = append(keys, key(id))
		}

		for attempt := 0; len(keys) > 0; attempt++ {
			if attempt == maxBatchAttempts {
				return res, errors.Errorf("%d charts were left unprocessed", len(keys))
			}
			out, err := s.client.BatchGetItemWithContext(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]*dynamodb.KeysAndAttributes{
					s.table: {
						Keys:                 keys,
						ProjectionExpression: aws.String("PK, Title, Composer, #y, Tempo"),
						// Year is a reserved word
						ExpressionAttributeNames: map[string]*string{"#y": aws.String("Year")},
					},
				},
			})
			if err != nil {
				return res, errors.Wrap(err, "error from DynamoDB")
			}

			for _, v := range out.Responses[s.table] {
				var item chartItem
				if err := dynamodbattribute.UnmarshalMap(v, &item); err != nil {
					return res, errors.Wrap(err, "malformed chart item")
				}
				res[item.PK] = item.metadata()
			}

			keys = nil
			if unprocessed, ok := out.UnprocessedKeys[s.table]; ok && unprocessed != nil {
				keys = unprocessed.Keys
			}
		}
	}
	return res, nil
}

// Chart returns a chart source that fetches id from the store.
func (s *ChartStore) Chart(id string) Source {
	return Source{store: s, id: id}
}

type Source struct {
	store *ChartStore
	id    string
}

func (c Source) FetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	return c.store.GetSnapshot(ctx, c.id)
}
