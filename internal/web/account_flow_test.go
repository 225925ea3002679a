// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package web_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/codevault/codevault/internal/web"
)

// browser is an HTTP client that keeps cookies between requests, as a
// frontend would.
type browser struct {
	base   string
	client *http.Client
}

func (b *browser) send(method, path string, body any, header http.Header) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequest(method, b.base+web.BasePath+path, &buf) //nolint:noctx // test request
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := b.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&decoded)).To(Succeed())
	return resp, decoded
}

var _ = Describe("Account API", func() {
	var (
		env    *apiEnv
		server *httptest.Server
		client *browser
	)

	BeforeEach(func() {
		env = newAPIEnv(GinkgoTB(), withInsecureCookies())
		server = httptest.NewServer(env.router)
		DeferCleanup(server.Close)

		jar, err := cookiejar.New(nil)
		Expect(err).NotTo(HaveOccurred())
		client = &browser{base: server.URL, client: &http.Client{Jar: jar}}
	})

	It("registers, signs in and reads the profile", func() {
		resp, body := client.send(http.MethodPost, "/register", map[string]string{
			"username": "ada",
			"email":    "ada@example.com",
			"password": "secret123",
		}, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		Expect(body["accessToken"]).NotTo(BeEmpty())
		Expect(body["refreshToken"]).NotTo(BeEmpty())

		resp, body = client.send(http.MethodPost, "/login", map[string]string{
			"email":    "ada@example.com",
			"password": "secret123",
		}, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		accessToken, ok := body["accessToken"].(string)
		Expect(ok).To(BeTrue())

		By("using the cookie the login set")
		resp, body = client.send(http.MethodGet, "/profile", nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["user"]).To(SatisfyAll(
			HaveKeyWithValue("username", "ada"),
			HaveKeyWithValue("email", "ada@example.com"),
			Not(HaveKey("password")),
		))

		By("using the bearer header from a fresh client")
		anonymous := &browser{base: server.URL, client: &http.Client{}}
		resp, _ = anonymous.send(http.MethodGet, "/profile", nil, http.Header{"Authorization": {"Bearer " + accessToken}})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("forgets the session on logout and restores it with the refresh cookie", func() {
		resp, _ := client.send(http.MethodPost, "/register", map[string]string{
			"username": "ada",
			"email":    "ada@example.com",
			"password": "secret123",
		}, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		resp, _ = client.send(http.MethodPost, "/refresh", nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, _ = client.send(http.MethodPost, "/logout", nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, body := client.send(http.MethodGet, "/profile", nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(body).To(HaveKeyWithValue("success", false))

		resp, _ = client.send(http.MethodPost, "/refresh", nil, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("recovers a forgotten password exactly once", func() {
		resp, _ := client.send(http.MethodPost, "/register", map[string]string{
			"username": "ada",
			"email":    "ada@example.com",
			"password": "secret123",
		}, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		resp, _ = client.send(http.MethodPost, "/forgot-password", map[string]string{"email": "ada@example.com"}, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		token := env.lastResetToken(GinkgoTB())

		resp, _ = client.send(http.MethodPost, "/reset-password/"+token, map[string]string{"newPassword": "n3w-secret"}, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, body := client.send(http.MethodPost, "/reset-password/"+token, map[string]string{"newPassword": "again-123"}, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(body).To(HaveKeyWithValue("message", "password reset token is invalid or has expired"))

		resp, _ = client.send(http.MethodPost, "/login", map[string]string{
			"username": "ada",
			"password": "n3w-secret",
		}, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})
})
