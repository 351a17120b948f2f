package modbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// Client is a Modbus TCP connection to a single unit. It is safe for
// concurrent use; requests are serialized.
type Client struct {
	client  *modbus.ModbusClient
	mu      sync.Mutex
	url     string
	unitID  uint8
	timeout time.Duration
}

func NewClient(ip string, port int, unitID uint8, timeout time.Duration) *Client {
	return &Client{
		url:     fmt.Sprintf("tcp://%s:%d", ip, port),
		unitID:  unitID,
		timeout: timeout,
	}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.client != nil {
		return nil
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     c.url,
		Timeout: c.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create modbus client: %w", err)
	}
	if err := client.Open(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	// Huawei inverters answer big-endian with the high word first.
	if err := client.SetEncoding(modbus.BIG_ENDIAN, modbus.HIGH_WORD_FIRST); err != nil {
		client.Close()
		return err
	}
	if err := client.SetUnitId(c.unitID); err != nil {
		client.Close()
		return err
	}
	c.client = client
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

// ReadHoldingRegisters reads quantity raw registers starting at address,
// connecting first when needed.
func (c *Client) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	regs, err := c.client.ReadRegisters(address, quantity, modbus.HOLDING_REGISTER)
	if err != nil {
		// drop the connection so the next read starts from a fresh socket
		_ = c.closeLocked()
		return nil, fmt.Errorf("failed to read holding registers at %d: %w", address, err)
	}
	return regs, nil
}

func (c *Client) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.closeLocked()
	return c.connectLocked()
}
