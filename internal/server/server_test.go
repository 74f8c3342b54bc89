package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/handwriting-extractor/internal/extraction"
	"github.com/zombor/handwriting-extractor/internal/scanning"
)

func multipartBody(filename string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func jpegBody(filename string, img image.Image) (*bytes.Buffer, string) {
	var data bytes.Buffer
	Expect(jpeg.Encode(&data, img, &jpeg.Options{Quality: 90})).To(Succeed())

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data.Bytes())
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response) map[string]any {
	defer resp.Body.Close()
	var body map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return body
}

var _ = Describe("Server", func() {
	var (
		provider    *mockProvider
		tracer      extraction.Tracer
		agent       *extraction.Agent
		storageDir  string
		storage     Storage
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		provider = &mockProvider{reply: "```json\n{\"Name\": \"Jane\", \"Date\": \"2024-01-01\"}\n```"}
		tracer = nil
		storageDir = GinkgoT().TempDir()

		var err error
		storage, err = NewLocalStorage(storageDir)
		Expect(err).NotTo(HaveOccurred())
	})

	JustBeforeEach(func() {
		if agent == nil {
			agent = extraction.NewAgentWithDeps(
				extraction.NewOrchestrator([]scanning.Provider{provider}, false),
				scanning.NewEncoder(false),
				tracer,
			)
		}
		server = NewServer(agent, storage, "1.2.3")
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		agent = nil
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	upload := func(filename string, data []byte) *http.Response {
		body, contentType := multipartBody(filename, data)
		resp, err := http.Post(ghttpServer.URL()+"/upload", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("handleRoot", func() {
		It("should describe the API", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body := decodeBody(resp)
			Expect(body["message"]).To(Equal("Handwriting Extraction API"))
			Expect(body["version"]).To(Equal("1.2.3"))
			Expect(body["endpoints"]).To(HaveKey("/upload"))
		})
	})

	Describe("handleHealth", func() {
		It("should report the agent state", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body := decodeBody(resp)
			Expect(body["status"]).To(Equal("healthy"))
			Expect(body["agent_initialized"]).To(BeTrue())
			Expect(body["preprocessing_enabled"]).To(BeFalse())
			Expect(body["tracing_enabled"]).To(BeFalse())
			Expect(body["providers"]).To(Equal([]any{
				map[string]any{"name": "huggingface", "vision": true},
			}))
		})
	})

	Describe("handleUpload", func() {
		When("the upload is a valid image", func() {
			It("should return the extraction envelope", func() {
				resp := upload("my note.jpg", []byte("fake image data"))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				body := decodeBody(resp)
				Expect(body["success"]).To(BeTrue())
				Expect(body["filename"]).To(Equal("my note.jpg"))
				Expect(body["extracted_data"]).To(Equal(map[string]any{"Name": "Jane", "Date": "2024-01-01"}))
				Expect(body["message"]).To(Equal("Handwriting extracted successfully using HuggingFace"))
				Expect(body).NotTo(HaveKey("error"))
			})

			It("should pass the uploaded bytes to the provider", func() {
				upload("note.png", []byte("fake image data")).Body.Close()
				Expect(provider.data).To(Equal([]byte("fake image data")))
			})

			It("should remove the scratch file", func() {
				upload("note.jpeg", []byte("fake image data")).Body.Close()
				entries, err := os.ReadDir(storageDir)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())
			})
		})

		When("a real photo is uploaded with preprocessing enabled", func() {
			BeforeEach(func() {
				provider.reply = "```json\n{\"Name\":\"unreadable\",\"Date\":\"2024-01-01\"}\n```"
				agent = extraction.NewAgentWithDeps(
					extraction.NewOrchestrator([]scanning.Provider{provider}, false),
					scanning.NewEncoder(true),
					nil,
				)
			})

			It("should return the normalized envelope", func() {
				photo := image.NewRGBA(image.Rect(0, 0, 600, 400))
				for y := 0; y < 400; y++ {
					for x := 0; x < 600; x++ {
						photo.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
					}
				}
				body, contentType := jpegBody("form.jpg", photo)

				resp, err := http.Post(ghttpServer.URL()+"/upload", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(decodeBody(resp)).To(Equal(map[string]any{
					"success":        true,
					"filename":       "form.jpg",
					"extracted_data": map[string]any{"Name": "unreadable", "Date": "2024-01-01"},
					"message":        "Handwriting extracted successfully using HuggingFace",
				}))

				sent, format, err := image.Decode(bytes.NewReader(provider.data))
				Expect(err).NotTo(HaveOccurred())
				Expect(format).To(Equal("jpeg"))
				Expect(sent.Bounds()).To(Equal(image.Rect(0, 0, 600, 400)))
			})
		})

		When("the file type is not allowed", func() {
			It("should return bad request", func() {
				resp := upload("note.gif", []byte("GIF89a"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeBody(resp)["detail"]).To(Equal("File type .gif not allowed. Allowed types: .jpg, .jpeg, .png, .pdf"))
				Expect(provider.data).To(BeNil())
			})
		})

		When("the file is a PDF", func() {
			It("should explain that PDFs need extra setup", func() {
				resp := upload("scan.PDF", []byte("%PDF-1.4"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeBody(resp)["detail"]).To(ContainSubstring("poppler-utils"))
			})
		})

		When("the file is too large", func() {
			It("should return bad request", func() {
				resp := upload("big.jpg", bytes.Repeat([]byte("a"), MaxUploadSize+1))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeBody(resp)["detail"]).To(Equal("File size exceeds maximum allowed size of 10MB"))
				Expect(provider.data).To(BeNil())
			})
		})

		When("no file is provided", func() {
			It("should return bad request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("other", "x")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/upload", writer.FormDataContentType(), body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeBody(resp)["detail"]).To(Equal("No file provided"))
			})
		})

		When("the provider fails", func() {
			BeforeEach(func() {
				provider.err = errors.New("model overloaded")
			})

			It("should return internal server error", func() {
				resp := upload("note.jpg", []byte("fake image data"))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(decodeBody(resp)["detail"]).To(ContainSubstring("model overloaded"))
			})
		})

		When("no provider is configured", func() {
			BeforeEach(func() {
				agent = extraction.NewAgentWithDeps(extraction.NewOrchestrator(nil, false), scanning.NewEncoder(false), nil)
			})

			It("should return internal server error naming the missing token", func() {
				resp := upload("note.jpg", []byte("fake image data"))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(decodeBody(resp)["detail"]).To(ContainSubstring("HF_TOKEN"))
			})
		})

		When("the scratch file can't be written", func() {
			BeforeEach(func() {
				storage = &LocalStorage{basePath: filepath.Join(storageDir, "gone")}
			})

			It("should return internal server error", func() {
				resp := upload("note.jpg", []byte("fake image data"))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(decodeBody(resp)["detail"]).To(ContainSubstring("Error processing file"))
			})
		})
	})

	Describe("without an agent", func() {
		JustBeforeEach(func() {
			ghttpServer.Close()
			server = NewServer(nil, storage, "1.2.3")
			ghttpServer = ghttp.NewServer()
			ghttpServer.AppendHandlers(server.ServeHTTP)
		})

		It("should refuse uploads", func() {
			resp := upload("note.jpg", []byte("fake image data"))
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(decodeBody(resp)["detail"]).To(ContainSubstring("Agent not initialized"))
		})
	})

	Describe("metrics", func() {
		It("should count uploads and extractions", func() {
			upload("note.jpg", []byte("fake image data")).Body.Close()

			ghttpServer.AppendHandlers(server.ServeHTTP)
			resp, err := http.Get(ghttpServer.URL() + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`handwriting_extractor_upload_requests_total{status="200"}`))
			Expect(string(raw)).To(ContainSubstring(`handwriting_extractor_extractions_total{outcome="success",provider="huggingface"}`))
		})
	})

	Describe("handleCleanup", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(filepath.Join(storageDir, "a.jpg"), []byte("a"), 0644)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(storageDir, "b.png"), []byte("b"), 0644)).To(Succeed())
		})

		It("should delete leftover uploads", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/cleanup", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body := decodeBody(resp)
			Expect(body["message"]).To(Equal("Cleaned up 2 files"))
			Expect(body["deleted"]).To(Equal(float64(2)))
		})
	})

	Describe("handleListTraces", func() {
		When("tracing is disabled", func() {
			It("should return not found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/traces")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})

		When("traces are stored", func() {
			var store *extraction.TraceStore

			BeforeEach(func() {
				var err error
				store, err = extraction.NewTraceStore(filepath.Join(GinkgoT().TempDir(), "traces.db"))
				Expect(err).NotTo(HaveOccurred())
				Expect(store.Record(context.Background(), extraction.Trace{Name: "handwriting_extraction_huggingface", Filename: "note.jpg"})).To(Succeed())
				tracer = store
			})

			AfterEach(func() {
				Expect(store.Close()).To(Succeed())
			})

			It("should list them", func() {
				resp, err := http.Get(ghttpServer.URL() + "/traces")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				defer resp.Body.Close()

				raw, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				var traces []extraction.Trace
				Expect(json.Unmarshal(raw, &traces)).To(Succeed())
				Expect(traces).To(HaveLen(1))
				Expect(traces[0].Filename).To(Equal("note.jpg"))
			})
		})
	})
})
