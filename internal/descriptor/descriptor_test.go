package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"webapp-server/internal/component"
	"webapp-server/internal/listener"
	"webapp-server/internal/protocol"
	"webapp-server/internal/router"
	"webapp-server/internal/web"
)

const webYAML = `
display_name: demo
context_params:
  greeting: hi
handlers:
  - name: hello
    impl: echo
    init_params:
      message: Hello from yaml
  - name: other
    impl: echo
routes:
  - pattern: /hello
    handler: hello
  - pattern: /dup
    handler: hello
  - pattern: /dup
    handler: other
filters:
  - name: logging
    impl: reqlog
filter_mappings:
  - pattern: /hello
    filter: logging
listeners:
  - counter
`

const webTOML = `
display_name = "demo"
listeners = ["counter"]

[context_params]
greeting = "hi"

[[handlers]]
name = "hello"
impl = "echo"
[handlers.init_params]
message = "Hello from yaml"

[[handlers]]
name = "other"
impl = "echo"

[[routes]]
pattern = "/hello"
handler = "hello"

[[routes]]
pattern = "/dup"
handler = "hello"

[[routes]]
pattern = "/dup"
handler = "other"

[[filters]]
name = "logging"
impl = "reqlog"

[[filter_mappings]]
pattern = "/hello"
filter = "logging"
`

const webJSON = `{
  "display_name": "demo",
  "context_params": {"greeting": "hi"},
  "handlers": [
    {"name": "hello", "impl": "echo", "init_params": {"message": "Hello from yaml"}},
    {"name": "other", "impl": "echo"}
  ],
  "routes": [
    {"pattern": "/hello", "handler": "hello"},
    {"pattern": "/dup", "handler": "hello"},
    {"pattern": "/dup", "handler": "other"}
  ],
  "filters": [{"name": "logging", "impl": "reqlog"}],
  "filter_mappings": [{"pattern": "/hello", "filter": "logging"}],
  "listeners": ["counter"]
}`

type counter struct{ created int }

func (c *counter) SessionCreated(listener.Event) error {
	c.created++
	return nil
}

func (c *counter) SessionDestroyed(listener.Event) error { return nil }

type target struct {
	Target
	logs *observer.ObservedLogs
}

func newTarget(t *testing.T) target {
	t.Helper()
	components := component.NewFactories()
	noop := func() web.Component { return nil }
	require.NoError(t, components.Register("echo", noop))
	require.NoError(t, components.Register("reqlog", noop))

	listenerFactories := listener.NewFactories()
	require.NoError(t, listenerFactories.Register("counter", func() (any, error) { return &counter{}, nil }))
	require.NoError(t, listenerFactories.Register("nothing", func() (any, error) { return struct{}{}, nil }))

	core, logs := observer.New(zap.WarnLevel)
	return target{
		Target: Target{
			Routes:            router.NewTable(),
			App:               web.NewAppContext("demo"),
			Components:        components,
			Listeners:         listener.NewRegistry(nil),
			ListenerFactories: listenerFactories,
			Logger:            zap.New(core),
		},
		logs: logs,
	}
}

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAndApply(t *testing.T) {
	for name, body := range map[string]string{"web.yaml": webYAML, "web.toml": webTOML, "web.json": webJSON} {
		t.Run(name, func(t *testing.T) {
			p := write(t, name, body)
			d, err := Load(p)
			require.NoError(t, err)
			assert.Equal(t, "demo", d.DisplayName)

			tg := newTarget(t)
			require.NoError(t, d.Apply(p, tg.Target))

			id, ok := tg.Routes.ResolveHandler("/hello")
			require.True(t, ok)
			assert.Equal(t, "hello", id)
			h, ok := tg.Routes.Handler("hello")
			require.True(t, ok)
			assert.Equal(t, "Hello from yaml", h.InitParams["message"])
			assert.Equal(t, []string{"logging"}, tg.Routes.ResolveFilters("/hello"))
			assert.Empty(t, tg.Routes.ResolveFilters("/dup"))

			// last declaration wins, with a warning
			id, _ = tg.Routes.ResolveHandler("/dup")
			assert.Equal(t, "other", id)
			assert.Equal(t, 1, tg.logs.FilterMessage("duplicate route, last declaration wins").Len())

			assert.Equal(t, "hi", tg.App.InitParameter("greeting"))
			assert.Equal(t, 1, tg.Listeners.Len(listener.SessionCreated))
			assert.Equal(t, 1, tg.Listeners.Len(listener.SessionDestroyed))
			assert.Zero(t, tg.Listeners.Len(listener.RequestInitialized))
		})
	}
}

func TestApplyUndeclaredHandler(t *testing.T) {
	d, err := Parse(".yaml", []byte(`
handlers:
  - name: hello
    impl: echo
routes:
  - pattern: /hello
    handler: missing
`))
	require.NoError(t, err)

	err = d.Apply("web.yaml", newTarget(t).Target)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "web.yaml", cfgErr.Path)
	assert.ErrorIs(t, err, protocol.ErrHandlerNotFound)
}

func TestApplyRejects(t *testing.T) {
	cases := map[string]struct {
		body string
		want error
		msg  string
	}{
		"unknown impl": {
			body: "handlers:\n  - name: h\n    impl: nosuch\n",
			want: protocol.ErrFactoryNotFound,
		},
		"unbound filter": {
			body: "handlers:\n  - name: h\n    impl: echo\nroutes:\n  - pattern: /h\n    handler: h\nfilter_mappings:\n  - pattern: /h\n    filter: ghost\n",
			want: protocol.ErrFilterNotFound,
		},
		"unknown listener": {
			body: "listeners: [ghost]\n",
			want: protocol.ErrFactoryNotFound,
		},
		"listener without interface": {
			body: "listeners: [nothing]\n",
			msg:  "implements no listener interface",
		},
		"relative pattern": {
			body: "handlers:\n  - name: h\n    impl: echo\nroutes:\n  - pattern: h\n    handler: h\n",
			msg:  "must start with /",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d, err := Parse(".yml", []byte(tc.body))
			require.NoError(t, err)
			err = d.Apply("web.yml", newTarget(t).Target)
			require.Error(t, err)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
			if tc.msg != "" {
				assert.ErrorContains(t, err, tc.msg)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	for name, body := range map[string]string{
		"web.yaml": "handlers: []\nservlets: []\n",
		"web.toml": "servlets = []\n",
		"web.json": `{"servlets": []}`,
		"web.xml":  "<web-app/>",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, name, body))
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "web.yaml"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEmptyDescriptor(t *testing.T) {
	d, err := Parse(".yaml", nil)
	require.NoError(t, err)
	assert.NoError(t, d.Apply("web.yaml", newTarget(t).Target))
}
