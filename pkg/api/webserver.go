package api

import (
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hoopvision/dataset-pipeline/pkg/dataset"
	"github.com/hoopvision/dataset-pipeline/pkg/utils"
	"github.com/spf13/viper"
)

//SetRouter wires the HTTP surface of the dataset pipeline: uploading source videos,
//kicking off a build run and inspecting its results
func SetRouter(pipeline *dataset.Pipeline) *gin.Engine {
	r := gin.Default()

	apiRoutes := r.Group("/api")

	apiRoutes.GET("/Videos", func(ctx *gin.Context) {
		if names, err := utils.ListDir(viper.GetString("directory.source")); err != nil {
			ctx.Status(http.StatusInternalServerError)
		} else {
			ctx.JSON(http.StatusOK, names)
		}
	})

	apiRoutes.POST("/Upload", func(ctx *gin.Context) {
		file, fHeader, err := ctx.Request.FormFile("video")
		if err != nil {
			ctx.Status(http.StatusInternalServerError)
			return
		}
		defer file.Close()

		if existNames, err := utils.ListDir(viper.GetString("directory.source")); err != nil {
			ctx.Status(http.StatusInternalServerError)
			return
		} else {
			if utils.InSlice(fHeader.Filename, existNames) {
				ctx.Status(http.StatusNotAcceptable)
				return
			}
		}

		log.Printf("api/Upload: Received new file: name - '%s', size - %v Bytes", fHeader.Filename, fHeader.Size)

		fileBytes, err := io.ReadAll(file)
		if err != nil {
			log.Printf("api/Upload: Could not read request's body, got '%v'", err)
			ctx.Status(http.StatusInternalServerError)
			return
		}

		srcFilePath := path.Join(viper.GetString("directory.source"), fHeader.Filename)

		if err = os.WriteFile(srcFilePath, fileBytes, 0444); err != nil {
			log.Printf("api/Upload: Could not write '%s' file, got '%v'", srcFilePath, err)
			ctx.Status(http.StatusInternalServerError)
			return
		}

		ctx.Status(http.StatusOK)
	})

	apiRoutes.POST("/Build", func(ctx *gin.Context) {
		if pipeline.Status().State == dataset.StateRunning {
			ctx.Status(http.StatusConflict)
			return
		}

		go func() {
			if err := pipeline.Run(); err != nil {
				log.Printf("api/Build: Error, got '%v'", err)
			}
		}()

		ctx.JSON(http.StatusAccepted, gin.H{"state": dataset.StateRunning})
	})

	apiRoutes.GET("/Status", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, pipeline.Status())
	})

	apiRoutes.GET("/Preview", func(ctx *gin.Context) {
		name := ctx.Query("image")
		if name == "" || strings.Contains(name, "..") {
			ctx.Status(http.StatusBadRequest)
			return
		}

		imagePath := path.Join(viper.GetString("directory.augmented"), name)
		if _, err := os.Stat(imagePath); err != nil {
			ctx.Status(http.StatusNotFound)
			return
		}

		previewPath := path.Join(os.TempDir(), "preview_"+path.Base(name))
		if err := dataset.RenderPreview(imagePath, previewPath, viper.GetStringSlice("classes"), 90); err != nil {
			log.Printf("api/Preview: Error rendering '%s', got '%v'", imagePath, err)
			ctx.Status(http.StatusInternalServerError)
			return
		}
		defer os.Remove(previewPath)

		ctx.Header("Content-Type", "image/jpeg")
		http.ServeFile(ctx.Writer, ctx.Request, previewPath)
	})

	apiRoutes.GET("/Manifest", func(ctx *gin.Context) {
		manifestPath := pipeline.ManifestPath()
		if _, err := os.Stat(manifestPath); err != nil {
			if os.IsNotExist(err) {
				ctx.Status(http.StatusNotFound)
			} else {
				ctx.Status(http.StatusInternalServerError)
			}
			return
		}

		ctx.Header("Content-Type", "application/json")
		http.ServeFile(ctx.Writer, ctx.Request, manifestPath)
	})

	return r
}
