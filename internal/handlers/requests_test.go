package handlers

import (
	"net/url"
	"testing"

	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptForm_Attrs(t *testing.T) {
	t.Run("absent fields stay nil", func(t *testing.T) {
		attrs, err := ScriptForm{ID: " s1 ", Name: "w1"}.Attrs(url.Values{"id": nil, "name": nil})
		require.NoError(t, err)
		assert.Equal(t, "s1", attrs.ID)
		assert.Equal(t, "w1", *attrs.Name)
		assert.Nil(t, attrs.Body)
		assert.Nil(t, attrs.Language)
		assert.Nil(t, attrs.Parameters)
		assert.Nil(t, attrs.Properties)
	})

	t.Run("present empty lists clear", func(t *testing.T) {
		attrs, err := ScriptForm{}.Attrs(url.Values{"parameters": nil, "resources": nil, "hadoopProperties": nil})
		require.NoError(t, err)
		assert.Equal(t, []string{}, attrs.Parameters)
		assert.Equal(t, []string{}, attrs.Resources)
		assert.Equal(t, map[string]string{}, attrs.Properties)
	})

	t.Run("encodings", func(t *testing.T) {
		f := ScriptForm{
			Language:         `"scala"`,
			Resources:        `["/a.jar", {"type":"file","value":"/b.txt"}]`,
			HadoopProperties: `{"k":"v"}`,
		}
		attrs, err := f.Attrs(url.Values{"language": nil, "resources": nil, "hadoopProperties": nil})
		require.NoError(t, err)
		assert.Equal(t, "scala", *attrs.Language)
		assert.Equal(t, []string{"/a.jar", "/b.txt"}, attrs.Resources)
		assert.Equal(t, map[string]string{"k": "v"}, attrs.Properties)
	})

	tests := []struct {
		name string
		form ScriptForm
		key  string
	}{
		{"parameters not a list", ScriptForm{Parameters: `{"a":1}`}, "parameters"},
		{"resource item not a string", ScriptForm{Resources: `[1]`}, "resources"},
		{"properties garbage", ScriptForm{HadoopProperties: `nope`}, "hadoopProperties"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.form.Attrs(url.Values{tt.key: nil})
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

func TestScriptForm_Variables(t *testing.T) {
	vars, err := ScriptForm{SubmissionVariables: `[{"name":"a","value":"1"},{"name":"","value":"x"}]`}.Variables()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1"}, vars)

	vars, err = ScriptForm{}.Variables()
	require.NoError(t, err)
	assert.Empty(t, vars)

	_, err = ScriptForm{SubmissionVariables: `[`}.Variables()
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestDeleteForm(t *testing.T) {
	f := DeleteForm{IDs: "A,B", Detail: "1"}
	assert.Equal(t, []string{"A", "B"}, f.SplitIDs())
	assert.True(t, f.WantDetail())
	assert.False(t, DeleteForm{IDs: "A"}.WantDetail())
}
