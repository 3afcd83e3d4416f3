package mailservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplate(t *testing.T) {
	template := &Template{}

	testCases := []struct {
		name         string
		templateName string
		data         any
		contains     string
		expectedErr  bool
	}{
		{
			name:         "activation",
			templateName: activationTemplate,
			data:         activationEmail{ActivationToken: "ABCDEFGHIJKLMNOPQRSTUVWXYZ", ActivationURL: "http://localhost:4000/v1/users/activate"},
			contains:     "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
		},
		{
			name:         "new post",
			templateName: newPostTemplate,
			data:         newPostEmail{BlogTitle: "Roadmap", PostTitle: "Q3 goals", PostURL: "http://localhost:4000/v1/posts/1"},
			contains:     "Q3 goals",
		},
		{
			name:         "invalid template name",
			templateName: "invalid_template.html",
			expectedErr:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, p, h, err := template.ParseTemplate(tc.templateName, tc.data)
			assert.Equal(t, tc.expectedErr, err != nil)

			if err == nil {
				require.NotEmpty(t, s.String())
				assert.Contains(t, p.String(), tc.contains)
				assert.Contains(t, h.String(), tc.contains)
			}
		})
	}
}

func TestNewPostEscapesHTML(t *testing.T) {
	_, _, h, err := (&Template{}).ParseTemplate(newPostTemplate, newPostEmail{BlogTitle: "<b>x</b>", PostTitle: "p"})
	require.NoError(t, err)
	assert.Contains(t, h.String(), "&lt;b&gt;x&lt;/b&gt;")
}
