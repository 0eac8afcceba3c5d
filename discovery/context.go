package discovery

import (
	"github.com/google/uuid"

	"github.com/kbukum/gokit-discovery/logger"
)

// Context carries the input of one discovery invocation and the scratch state
// filters share while the tree folds. It is owned by a single goroutine.
type Context struct {
	ID          string
	AppID       string
	ServiceName string
	VersionRule string
	Transport   string

	inputs  map[string]any
	params  map[string]any
	current *Node
	rerun   []*Node
	log     *logger.Logger
}

// NewContext creates an empty invocation context.
func NewContext() *Context {
	return &Context{
		ID:     uuid.NewString(),
		inputs: make(map[string]any),
		params: make(map[string]any),
	}
}

// WithTransport sets the requested transport and returns c.
func (c *Context) WithTransport(transport string) *Context {
	c.Transport = transport
	return c
}

// WithInput sets a caller supplied parameter and returns c.
func (c *Context) WithInput(key string, value any) *Context {
	c.inputs[key] = value
	return c
}

// Input returns a caller supplied parameter.
func (c *Context) Input(key string) (any, bool) {
	v, ok := c.inputs[key]
	return v, ok
}

// Param returns a value a filter stored during this invocation.
func (c *Context) Param(key string) (any, bool) {
	v, ok := c.params[key]
	return v, ok
}

// SetParam stores a value visible to later filters in this invocation.
func (c *Context) SetParam(key string, value any) {
	c.params[key] = value
}

// CurrentNode is the node the running filter was handed.
func (c *Context) CurrentNode() *Node { return c.current }

// PushRerunFilter records parent as a restart point. When a later filter
// produces an empty result the tree resumes from the most recent restart point
// with the filter that follows it.
func (c *Context) PushRerunFilter(parent *Node) {
	c.rerun = append(c.rerun, parent)
}

// PopRerunFilter removes and returns the most recent restart point.
func (c *Context) PopRerunFilter() *Node {
	if len(c.rerun) == 0 {
		return nil
	}
	last := c.rerun[len(c.rerun)-1]
	c.rerun = c.rerun[:len(c.rerun)-1]
	return last
}

// Logger returns the invocation-scoped logger.
func (c *Context) Logger() *logger.Logger {
	if c.log == nil {
		return logger.NewNop()
	}
	return c.log
}

func (c *Context) bind(log *logger.Logger, appID, serviceName, versionRule string) {
	c.AppID = appID
	c.ServiceName = serviceName
	c.VersionRule = versionRule
	if c.inputs == nil {
		c.inputs = make(map[string]any)
	}
	if c.params == nil {
		c.params = make(map[string]any)
	}
	c.log = log.WithFields(map[string]interface{}{
		"discovery_id":          c.ID,
		logger.FieldAppID:       appID,
		logger.FieldService:     serviceName,
		logger.FieldVersionRule: versionRule,
	})
}
