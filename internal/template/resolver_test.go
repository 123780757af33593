package template_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yujiajie1988/hive/internal/template"
	"github.com/yujiajie1988/hive/pkg/credential"
)

type fakeGetter struct {
	objects map[string]*credential.Object
	calls   map[string]int
}

func newFakeGetter() *fakeGetter {
	return &fakeGetter{objects: make(map[string]*credential.Object), calls: make(map[string]int)}
}

func (f *fakeGetter) add(obj *credential.Object) {
	f.objects[obj.ID] = obj
}

func (f *fakeGetter) Get(_ context.Context, id string) (*credential.Object, error) {
	f.calls[id]++
	obj, ok := f.objects[id]
	if !ok {
		return nil, &credential.NotFoundError{ID: id}
	}
	return obj, nil
}

func githubOAuth() *credential.Object {
	obj := credential.NewObject("github_oauth", credential.KindOAuth2)
	obj.SetKey(credential.Key{Name: "access_token", Value: credential.NewSecret("ghp_123")})
	return obj
}

func TestResolveExplicitKey(t *testing.T) {
	t.Parallel()

	g := newFakeGetter()
	g.add(githubOAuth())
	r := template.New(g)

	got, err := r.Resolve(context.Background(), "{{github_oauth.access_token}}", true)
	require.NoError(t, err)
	assert.Equal(t, "ghp_123", got)
}

func TestResolveMissingKeyAlwaysFails(t *testing.T) {
	t.Parallel()

	g := newFakeGetter()
	g.add(githubOAuth())
	r := template.New(g)

	for _, failOnMissing := range []bool{true, false} {
		_, err := r.Resolve(context.Background(), "{{github_oauth.nope}}", failOnMissing)
		require.Error(t, err)
		var keyErr *credential.KeyNotFoundError
		assert.ErrorAs(t, err, &keyErr)
	}
}

func TestResolveDefaultKeyPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		keys []string
		want string
	}{
		{name: "value_wins", keys: []string{"value", "api_key", "access_token"}, want: "value"},
		{name: "api_key_when_no_value", keys: []string{"api_key", "access_token"}, want: "api_key"},
		{name: "access_token_when_neither", keys: []string{"access_token"}, want: "access_token"},
		{name: "first_inserted_otherwise", keys: []string{"z_custom", "a_custom"}, want: "z_custom"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			obj := credential.NewObject("svc", credential.KindAPIKey)
			for _, k := range tt.keys {
				obj.SetKey(credential.Key{Name: k, Value: credential.NewSecret(k)})
			}
			g := newFakeGetter()
			g.add(obj)
			r := template.New(g)

			got, err := r.Resolve(context.Background(), "{{svc}}", true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMissingCredentialPolicy(t *testing.T) {
	t.Parallel()

	g := newFakeGetter()
	r := template.New(g)

	_, err := r.Resolve(context.Background(), "{{stripe.key}}", true)
	require.Error(t, err)
	var notFound *credential.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	got, err := r.Resolve(context.Background(), "{{stripe.key}}", false)
	require.NoError(t, err)
	assert.Equal(t, "{{stripe.key}}", got)
}

func TestResolveHeaders(t *testing.T) {
	t.Parallel()

	g := newFakeGetter()
	g.add(githubOAuth())
	r := template.New(g)

	headers, err := r.ResolveHeaders(context.Background(), map[string]string{
		"Authorization": "Bearer {{github_oauth.access_token}}",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "Bearer ghp_123", headers["Authorization"])
}

func TestResolveConsistentSnapshotPerCall(t *testing.T) {
	t.Parallel()

	g := newFakeGetter()
	g.add(githubOAuth())
	r := template.New(g)

	_, err := r.Resolve(context.Background(), "{{github_oauth.access_token}} {{github_oauth.access_token}}", true)
	require.NoError(t, err)
	assert.Equal(t, 1, g.calls["github_oauth"], "one resolve call must fetch each referenced id at most once")
}

func TestHasTemplatesAndExtractReferences(t *testing.T) {
	t.Parallel()

	assert.True(t, template.HasTemplates("X-Key: {{svc.api_key}}"))
	assert.False(t, template.HasTemplates("X-Key: plain"))

	refs := template.ExtractReferences("{{a}} and {{b.c}}")
	require.Len(t, refs, 2)
	assert.Equal(t, template.Reference{ID: "a", Key: ""}, refs[0])
	assert.Equal(t, template.Reference{ID: "b", Key: "c"}, refs[1])
}
