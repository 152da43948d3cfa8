package utils

import (
	"fmt"
	"os"
	"strings"
)

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
// Если файла нет, используется переменная окружения с именем секрета в
// верхнем регистре (локальная разработка без Docker Secrets).
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err == nil {
		secret := strings.TrimSpace(string(secretBytes))
		if secret == "" {
			return "", fmt.Errorf("secret file %s is empty", filePath)
		}
		return secret, nil
	}

	envName := strings.ToUpper(secretName)
	if secret := strings.TrimSpace(os.Getenv(envName)); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("failed to read secret %s: no file %s and env %s is empty", secretName, filePath, envName)
}
