package alert

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
)

// API bundles the SNS operations the sink depends on.
type API interface {
	Publish(*sns.PublishInput) (*sns.PublishOutput, error)
}

type snsSink struct {
	api      API
	topicARN string
}

// SNSSink returns a Sink which publishes alerts to an SNS topic for the
// observability collaborator.
func SNSSink(api API, topicARN string) Sink {
	return &snsSink{
		api:      api,
		topicARN: topicARN,
	}
}

func (s *snsSink) Raise(a *Alert) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("alert marshal failed: %s", err)
	}

	_, err = s.api.Publish(&sns.PublishInput{
		Message:  aws.String(string(raw)),
		Subject:  aws.String(string(a.Kind)),
		TopicArn: aws.String(s.topicARN),
	})
	if err != nil {
		return fmt.Errorf("alert publish failed: %s", err)
	}

	return nil
}
