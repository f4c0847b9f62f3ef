package testutil

import (
	"os"

	"github.com/bacalhau-project/shellwright/internal/testdata"
	"github.com/spf13/viper"
)

// GetTestViper returns a fresh viper instance loaded from the generic test config.
func GetTestViper() (*viper.Viper, error) {
	testConfig := viper.New()
	configFile, cleanup, err := WriteStringToTempFileWithExtension(testdata.TestGenericConfig, ".yaml")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	testConfig.SetConfigType("yaml")
	testConfig.SetConfigFile(configFile)
	err = testConfig.ReadInConfig()
	if err != nil {
		return nil, err
	}
	return testConfig, nil
}

// WriteStringToTempFileWithExtension returns the file path and a cleanup function.
func WriteStringToTempFileWithExtension(content string, extension string) (string, func(), error) {
	path, cleanup, err := WriteStringToTempFile(content)
	if err != nil {
		return "", nil, err
	}

	pathPlusExtension := path + extension
	// Rename the file to add the extension
	err = os.Rename(path, pathPlusExtension)
	if err != nil {
		cleanup()
		return "", nil, err
	}

	return pathPlusExtension, func() { os.Remove(pathPlusExtension) }, nil
}

func WriteStringToTempFile(content string) (string, func(), error) {
	tempFile, err := os.CreateTemp("", "temp-*")
	if err != nil {
		return "", nil, err
	}

	if _, err := tempFile.WriteString(content); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", nil, err
	}

	tempFile.Close()

	cleanup := func() {
		os.Remove(tempFile.Name())
	}

	return tempFile.Name(), cleanup, nil
}
