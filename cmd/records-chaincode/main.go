package main

import (
	"log"
	"os"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/medrex/healthcare-records/internal/chaincode"
	"github.com/medrex/healthcare-records/pkg/logger"
)

func main() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	recordsChaincode, err := contractapi.NewChaincode(chaincode.NewSmartContract(logger.New(level)))
	if err != nil {
		log.Panicf("Error creating healthcare records chaincode: %v", err)
	}
	recordsChaincode.Info.Title = "healthcare-records"
	recordsChaincode.Info.Version = "1.0.0"

	if err := recordsChaincode.Start(); err != nil {
		log.Panicf("Error starting healthcare records chaincode: %v", err)
	}
}
