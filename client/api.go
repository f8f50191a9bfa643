package client

import (
	"dm-relay/domain"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Account is the identity returned by register and login.
type Account struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Token    string        `json:"token"`
}

type Contact struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// APIClient calls the relay HTTP API.
type APIClient struct {
	baseURL string
	timeout time.Duration
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{baseURL: baseURL, timeout: timeout}
}

func (c *APIClient) Register(username, password string) (Account, error) {
	var account Account
	err := c.do(fiber.Post(c.baseURL+"/register").JSON(map[string]string{
		"username": username,
		"password": password,
	}), &account)
	return account, err
}

func (c *APIClient) Login(username, password string) (Account, error) {
	var account Account
	err := c.do(fiber.Post(c.baseURL+"/login").JSON(map[string]string{
		"username": username,
		"password": password,
	}), &account)
	return account, err
}

// Contacts lists every other user.
func (c *APIClient) Contacts(current domain.UserID) ([]Contact, error) {
	var contacts []Contact
	query := url.Values{"currentUserId": {current.String()}}
	err := c.do(fiber.Get(c.baseURL+"/users?"+query.Encode()), &contacts)
	return contacts, err
}

// History fetches the conversation between a and b, oldest first.
func (c *APIClient) History(a, b domain.UserID) ([]domain.Message, error) {
	var messages []domain.Message
	err := c.do(fiber.Get(fmt.Sprintf("%s/messages/%s/%s", c.baseURL, a, b)), &messages)
	return messages, err
}

func (c *APIClient) do(agent *fiber.Agent, out any) error {
	agent.Timeout(c.timeout)
	if err := agent.Parse(); err != nil {
		return err
	}
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errs[0]
	}
	if code >= fiber.StatusBadRequest {
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("http %d", code)
		}
		return fmt.Errorf("http %d: %s", code, apiErr.Message)
	}
	return json.Unmarshal(body, out)
}
